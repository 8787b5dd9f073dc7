// Package fixtures loads demo source documents (emails and meeting
// transcripts) from Markdown files with YAML frontmatter, and watches an
// inbox folder for new ones.
package fixtures

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskhive/taskhive/internal/storage"
)

// Kind is the type of source document.
type Kind string

const (
	KindEmail   Kind = "email"
	KindMeeting Kind = "meeting"
)

// ErrUnknownKind is returned for documents without a recognised kind.
var ErrUnknownKind = errors.New("fixtures: unknown document kind")

// Document is one parsed source document.
type Document struct {
	Kind    Kind   `yaml:"kind"`
	From    string `yaml:"from,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Title   string `yaml:"title,omitempty"`
	// Body is the email body or the meeting transcript.
	Body string `yaml:"-"`
	// Path is the file the document was read from, empty for built-ins.
	Path string `yaml:"-"`
}

// DefaultEmail and DefaultMeeting are used when no fixture files exist.
var (
	DefaultEmail = Document{
		Kind:    KindEmail,
		From:    "demo-sender@example.com",
		Subject: "Final call: Action required for Q4 budget",
		Body:    "Hi team,\n\nPlease review the attached Q4 budget proposal and send your feedback to me by this Friday at 5pm. Also, don't forget the all-hands meeting next Monday.\n\nThanks",
	}
	DefaultMeeting = Document{
		Kind:  KindMeeting,
		Title: "Q4 Budget Review",
		Body:  "Alice: OK, let's start. The main point is the new marketing budget. Bob: I see it's increased by 20%. Alice: Yes, Bob, you need to finalize the vendor contracts by end-of-day. Carol: I'll draft the press release. Alice: Great. Carol, please send the draft to legal by tomorrow.",
	}
)

// Defaults returns the built-in documents.
func Defaults() []Document {
	return []Document{DefaultEmail, DefaultMeeting}
}

// Parse reads a fixture file: YAML frontmatter between leading --- lines,
// then the body. Meeting titles fall back to the first H1 heading.
func Parse(data []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var doc Document
	if fm != nil {
		if err := yaml.Unmarshal(fm, &doc); err != nil {
			return nil, fmt.Errorf("fixtures: frontmatter: %w", err)
		}
	}
	doc.Kind = Kind(strings.ToLower(strings.TrimSpace(string(doc.Kind))))

	switch doc.Kind {
	case KindEmail:
	case KindMeeting:
		if doc.Title == "" {
			doc.Title, body = splitHeading(body)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, doc.Kind)
	}
	doc.Body = strings.TrimSpace(body)
	return &doc, nil
}

// splitFrontmatter separates the YAML block from the body. Content without
// a closed frontmatter block is all body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	return yamlBlock, strings.TrimLeft(string(afterDelim), "\n\r"), nil
}

// splitHeading pops a leading "# Heading" line off body.
func splitHeading(body string) (string, string) {
	trimmed := strings.TrimLeft(body, "\n\r \t")
	if !strings.HasPrefix(trimmed, "# ") {
		return "", body
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(line[2:]), rest
}

// Render produces the fixture file form of doc.
func Render(doc Document) ([]byte, error) {
	fm, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("fixtures: render: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(doc.Body)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Load parses every fixture file at the root of store. Unreadable or
// malformed files are skipped. When no file yields a document the built-in
// defaults are returned.
func Load(store storage.Provider, logger *slog.Logger) ([]Document, error) {
	files, err := store.List("")
	if err != nil {
		return nil, err
	}
	var docs []Document
	for _, f := range files {
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("fixtures: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		doc, err := Parse(data)
		if err != nil {
			logger.Warn("fixtures: parse failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		doc.Path = f.Path
		docs = append(docs, *doc)
	}
	if len(docs) == 0 {
		return Defaults(), nil
	}
	return docs, nil
}

// WriteDefaults writes the built-in documents into store unless a file of
// the same name exists. It returns the paths written.
func WriteDefaults(store storage.Provider) ([]string, error) {
	targets := map[string]Document{
		"q4-budget-email.md":   DefaultEmail,
		"q4-budget-meeting.md": DefaultMeeting,
	}
	var written []string
	for _, name := range []string{"q4-budget-email.md", "q4-budget-meeting.md"} {
		if _, err := store.Read(name); err == nil {
			continue
		}
		data, err := Render(targets[name])
		if err != nil {
			return written, err
		}
		if err := store.Write(name, data); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}
