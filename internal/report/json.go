package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
)

// JSONWriter outputs pages in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written to every document when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the client version in every document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONPage is the document written by JSONWriter. It wraps the page to
// add output-specific fields such as resolved link URLs.
type JSONPage struct {
	// Version is the bebop version that produced the document.
	Version string `json:"version,omitempty"`

	// URL is the address of the page.
	URL string `json:"url"`

	*model.Page

	// Links replaces the page links with their resolved URLs.
	Links []JSONLink `json:"links"`

	// Cursor is the reading position when the page was written.
	Cursor int `json:"cursor"`
}

// JSONLink is a link with its resolved URL. URL is empty for a malformed
// target.
type JSONLink struct {
	model.Link

	URL string `json:"url,omitempty"`
}

// NewJSONPage builds the JSON document of page.
func NewJSONPage(page *model.Page, cursor navigation.Cursor, version string) *JSONPage {
	links := make([]JSONLink, len(page.Links))
	for i, l := range page.Links {
		links[i] = JSONLink{Link: l, URL: l.Resolved()}
	}
	return &JSONPage{
		Version: version,
		URL:     page.Address(),
		Page:    page,
		Links:   links,
		Cursor:  startLine(page, cursor),
	}
}

// Render writes the page as one JSON document.
func (w *JSONWriter) Render(page *model.Page, cursor navigation.Cursor) error {
	return w.writeJSON(NewJSONPage(page, cursor, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) error {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	// Trailing newline for terminal output.
	data = append(data, '\n')

	_, err = w.output.Write(data)
	return err
}
