package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/apperr"
)

// Add stores doc in collection under a freshly generated id and returns it.
// doc may be any JSON-marshalable object; its "id" field is overwritten.
func (db *DB) Add(ctx context.Context, collection string, doc any) (string, error) {
	fields, err := toFields(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	fields["id"] = id
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("docstore: marshal: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("docstore: add %s: %w", collection, err)
	}
	return id, nil
}

// Get returns a single document or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, collection, id string) (*Document, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("docstore: %s/%s: %w", collection, id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: json.RawMessage(data)}, nil
}

// Query returns documents matching q in the requested order. Without an
// explicit order, documents come back in insertion order. Ties on the order
// field are broken by insertion order in the same direction.
func (db *DB) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	where, args, err := buildWhere(collection, q.Where)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE `)
	sb.WriteString(where)

	if q.OrderBy != nil {
		path, err := jsonPath(q.OrderBy.Field)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.OrderBy.Direction == Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY json_extract(data, ?) %s, rowid %s`, dir, dir)
		args = append(args, path)
	} else {
		sb.WriteString(` ORDER BY rowid ASC`)
	}

	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Data: json.RawMessage(data)})
	}
	return out, rows.Err()
}

// Update merges patch into the stored document. Keys may be dotted paths
// (e.g. "source.origin"). Returns apperr.ErrNotFound if id does not resolve.
func (db *DB) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		if k == "id" {
			return fmt.Errorf("docstore: id is immutable")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var setArgs []string
	var args []any
	for _, k := range keys {
		path, err := jsonPath(k)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(patchValue(patch[k]))
		if err != nil {
			return fmt.Errorf("docstore: marshal %s: %w", k, err)
		}
		setArgs = append(setArgs, "?, json(?)")
		args = append(args, path, string(raw))
	}
	args = append(args, collection, id)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE documents SET data = json_set(data, `+strings.Join(setArgs, ", ")+`)
		 WHERE collection = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("docstore: %s/%s: %w", collection, id, apperr.ErrNotFound)
	}
	return nil
}

// Count returns the number of documents matching where.
func (db *DB) Count(ctx context.Context, collection string, where []Predicate) (int, error) {
	clause, args, err := buildWhere(collection, where)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE `+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore: count %s: %w", collection, err)
	}
	return n, nil
}

func buildWhere(collection string, preds []Predicate) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, p := range preds {
		path, err := jsonPath(p.Field)
		if err != nil {
			return "", nil, err
		}
		const expr = "json_extract(data, ?)"

		switch p.Op {
		case Eq, Ne:
			if p.Value == nil {
				if p.Op == Eq {
					clauses = append(clauses, expr+" IS NULL")
				} else {
					clauses = append(clauses, expr+" IS NOT NULL")
				}
				args = append(args, path)
				continue
			}
			v, err := normalize(p.Value)
			if err != nil {
				return "", nil, fmt.Errorf("docstore: field %s: %w", p.Field, err)
			}
			op := "="
			if p.Op == Ne {
				op = "!="
			}
			clauses = append(clauses, expr+" "+op+" ?")
			args = append(args, path, v)

		case Lt, Lte, Gt, Gte:
			v, err := normalize(p.Value)
			if err != nil {
				return "", nil, fmt.Errorf("docstore: field %s: %w", p.Field, err)
			}
			clauses = append(clauses, expr+" "+string(p.Op)+" ?")
			args = append(args, path, v)

		case In:
			values, err := normalizeSlice(p.Value)
			if err != nil {
				return "", nil, fmt.Errorf("docstore: field %s: %w", p.Field, err)
			}
			if len(values) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			clauses = append(clauses, expr+" IN ("+placeholders+")")
			args = append(args, path)
			args = append(args, values...)

		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", p.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// normalize converts a predicate value into the representation
// json_extract yields for it.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return FormatTime(x), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return FormatTime(*x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// patchValue renders instants in TimeLayout and leaves everything else to
// encoding/json.
func patchValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return FormatTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return FormatTime(*x)
	}
	return v
}

func normalizeSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("in operator needs a slice, got %T", v)
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		n, err := normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toFields(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("docstore: document must be a JSON object: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
