package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Store defines the document operations the repository layer depends on.
// Consumers should depend on this interface rather than the concrete *DB type.
type Store interface {
	Add(ctx context.Context, collection string, doc any) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Count(ctx context.Context, collection string, where []Predicate) (int, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// TimeLayout is the fixed-width UTC ISO-8601 layout used for every stored
// instant, so lexical comparison matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Document is one stored record.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", d.ID, err)
	}
	return nil
}

// Op is a predicate comparison operator.
type Op string

// Supported operators.
const (
	Eq  Op = "=="
	Ne  Op = "!="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
	In  Op = "in"
)

// Predicate filters documents on one field.
// A missing or null field never satisfies a range or inequality predicate.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Where builds a predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order sorts query results by a single field.
type Order struct {
	Field     string
	Direction Direction
}

// Query describes a filtered, ordered, limited read.
type Query struct {
	Where   []Predicate
	OrderBy *Order
	Limit   int
}

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func jsonPath(field string) (string, error) {
	if !fieldRe.MatchString(field) {
		return "", fmt.Errorf("docstore: invalid field name %q", field)
	}
	return "$." + field, nil
}
