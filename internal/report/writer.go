package report

import (
	"io"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
)

// Renderer writes a page to its output. The cursor is the reading
// position on the page; renderers for terminal display start there,
// document formats export the whole page.
type Renderer interface {
	Render(page *model.Page, cursor navigation.Cursor) error
}

// MultiRenderer renders to multiple Renderers in order.
type MultiRenderer struct {
	renderers []Renderer
}

// NewMultiRenderer creates a Renderer that renders to all given Renderers.
func NewMultiRenderer(renderers ...Renderer) *MultiRenderer {
	return &MultiRenderer{renderers: renderers}
}

// Render renders the page with every Renderer. It stops on the first
// error.
func (m *MultiRenderer) Render(page *model.Page, cursor navigation.Cursor) error {
	for _, r := range m.renderers {
		if err := r.Render(page, cursor); err != nil {
			return err
		}
	}
	return nil
}

// baseWriter provides common functionality for page writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// startLine returns the index of the first line to render for cursor.
func startLine(page *model.Page, cursor navigation.Cursor) int {
	switch {
	case cursor.Line < 0:
		return 0
	case cursor.Line > len(page.Lines):
		return len(page.Lines)
	default:
		return cursor.Line
	}
}
