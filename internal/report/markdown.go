package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
	"github.com/nao1215/markdown"
)

// MarkdownWriter outputs pages as Markdown documents. The whole page is
// written regardless of the cursor, followed by a table of its links.
type MarkdownWriter struct {
	baseWriter

	// linkTable appends the table of links.
	linkTable bool
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithLinkTable controls whether the table of links is written.
func WithLinkTable(enabled bool) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.linkTable = enabled
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		linkTable:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Render writes the page in Markdown format.
func (w *MarkdownWriter) Render(page *model.Page, _ navigation.Cursor) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, page)
	w.writeBody(md, page)
	if w.linkTable {
		w.writeLinks(md, page)
	}
	w.writeFooter(md)

	return md.Build()
}

// writeHeader writes the title and a table of page properties.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, page *model.Page) {
	md.H1(page.Title)
	md.PlainText("")

	rows := [][]string{
		{"URL", "`" + page.Address() + "`"},
		{"Type", page.MIME},
		{"Size", strconv.Itoa(page.Size) + " bytes"},
		{"Links", strconv.Itoa(page.LinkCount())},
	}
	if page.Charset != "" {
		rows = append(rows, []string{"Charset", page.Charset})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
	md.HorizontalRule()
	md.PlainText("")
}

// writeBody converts the page lines. Consecutive list items form one list
// and preformatted blocks become fenced code.
func (w *MarkdownWriter) writeBody(md *markdown.Markdown, page *model.Page) {
	var items []string
	flushList := func() {
		if len(items) > 0 {
			md.BulletList(items...)
			items = nil
		}
	}

	inPre := false
	for _, line := range page.Lines {
		if line.Type != model.LineListItem {
			flushList()
		}

		switch line.Type {
		case model.LineHeading1:
			md.H2(line.Text)
		case model.LineHeading2:
			md.H3(line.Text)
		case model.LineHeading3:
			md.PlainText("#### " + line.Text)
		case model.LineListItem:
			items = append(items, line.Text)
		case model.LineQuote:
			md.PlainText("> " + line.Text)
		case model.LinePreformatToggle:
			if inPre {
				md.PlainText("```")
			} else {
				md.PlainText("```" + fenceLanguage(line.Text))
			}
			inPre = !inPre
		case model.LinePreformatted:
			md.PlainText(line.Text)
		case model.LineLink:
			md.PlainText(markdownLink(page, line))
		case model.LineInfo:
			md.Note(line.Text)
		default:
			md.PlainText(line.Text)
		}
	}
	flushList()
	if inPre {
		md.PlainText("```")
	}
	md.PlainText("")
}

// writeLinks writes the table of links.
func (w *MarkdownWriter) writeLinks(md *markdown.Markdown, page *model.Page) {
	md.H2("Links")
	md.PlainText("")

	if page.LinkCount() == 0 {
		md.PlainText("No links on this page.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(page.Links))
	for i, l := range page.Links {
		target := l.Resolved()
		if target == "" {
			target = l.Target + " (malformed)"
		}
		rows[i] = []string{strconv.Itoa(l.ID), runewidth.Truncate(l.Display(), 60, "..."), "`" + target + "`"}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Label", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the document footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Saved with [bebop](https://github.com/nao1215/bebop)*")
}

// markdownLink formats a link line as "[id] [label](url)".
func markdownLink(page *model.Page, line model.Line) string {
	link, ok := page.Link(line.LinkID)
	if !ok || link.Resolved() == "" {
		return fmt.Sprintf("[%d] %s", line.LinkID, line.Text)
	}
	return fmt.Sprintf("[%d] [%s](%s)", line.LinkID, line.Text, link.Resolved())
}

// fenceLanguage returns the first word of the alt text of a
// preformatted block, used as the info string of the code fence.
func fenceLanguage(alt string) string {
	fields := strings.Fields(alt)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
