package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
)

// TextWriter renders pages as text for a terminal. Text, list items and
// quotes are word wrapped to the configured width; preformatted lines are
// truncated instead so that their layout survives. Link lines show their
// number in brackets, which is what users type to follow them.
type TextWriter struct {
	baseWriter

	// width is the wrap width in cells. Zero disables wrapping.
	width int

	// showURLs appends the resolved URL to every link line.
	showURLs bool

	styles textStyles
}

type textStyles struct {
	heading [3]lipgloss.Style
	link    lipgloss.Style
	quote   lipgloss.Style
	info    lipgloss.Style
	pre     lipgloss.Style
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithWidth sets the wrap width in cells.
func WithWidth(width int) TextWriterOption {
	return func(w *TextWriter) {
		if width >= 0 {
			w.width = width
		}
	}
}

// WithLinkURLs appends the resolved URL to link lines.
func WithLinkURLs(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.showURLs = show
	}
}

// WithColor forces styled output on or off. Without it, styling follows
// the capabilities of the output.
func WithColor(enabled bool) TextWriterOption {
	return func(w *TextWriter) {
		r := lipgloss.NewRenderer(w.output)
		if !enabled {
			r.SetColorProfile(termenv.Ascii)
		} else {
			r.SetColorProfile(termenv.ANSI256)
		}
		w.styles = newTextStyles(r)
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
		width:      80,
	}
	w.styles = newTextStyles(lipgloss.NewRenderer(output))

	for _, opt := range opts {
		opt(w)
	}
	return w
}

func newTextStyles(r *lipgloss.Renderer) textStyles {
	return textStyles{
		heading: [3]lipgloss.Style{
			r.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("12")),
			r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
			r.NewStyle().Bold(true),
		},
		link:  r.NewStyle().Foreground(lipgloss.Color("6")),
		quote: r.NewStyle().Italic(true),
		info:  r.NewStyle().Faint(true),
		pre:   r.NewStyle().Foreground(lipgloss.Color("3")).TabWidth(lipgloss.NoTabConversion),
	}
}

// Render writes the page from the cursor line to the end.
func (w *TextWriter) Render(page *model.Page, cursor navigation.Cursor) error {
	var sb strings.Builder
	for _, line := range page.Lines[startLine(page, cursor):] {
		for _, out := range w.format(page, line) {
			sb.WriteString(out)
			sb.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w.output, sb.String())
	return err
}

// format returns the output lines of one page line.
func (w *TextWriter) format(page *model.Page, line model.Line) []string {
	switch line.Type {
	case model.LinePreformatToggle:
		return nil
	case model.LinePreformatted:
		text := line.Text
		if w.width > 0 {
			text = runewidth.Truncate(text, w.width, "…")
		}
		return []string{w.styles.pre.Render(text)}
	case model.LineHeading1, model.LineHeading2, model.LineHeading3:
		level := headingLevel(line.Type)
		prefix := strings.Repeat("#", level) + " "
		return w.styleAll(w.styles.heading[level-1], w.wrap(prefix+line.Text, "", ""))
	case model.LineLink:
		text := "[" + strconv.Itoa(line.LinkID) + "] " + line.Text
		if link, ok := page.Link(line.LinkID); ok && w.showURLs {
			if resolved := link.Resolved(); resolved != "" {
				text += " <" + resolved + ">"
			} else {
				text += fmt.Sprintf(" <%s (malformed)>", link.Target)
			}
		}
		return w.styleAll(w.styles.link, w.wrap(text, "", strings.Repeat(" ", len(strconv.Itoa(line.LinkID))+3)))
	case model.LineListItem:
		return w.wrap(line.Text, "• ", "  ")
	case model.LineQuote:
		return w.styleAll(w.styles.quote, w.wrap(line.Text, "> ", "> "))
	case model.LineInfo:
		return w.styleAll(w.styles.info, w.wrap(line.Text, "", ""))
	default:
		return w.wrap(line.Text, "", "")
	}
}

// wrap word wraps text to the writer width. first prefixes the first
// output line and rest every following one.
func (w *TextWriter) wrap(text, first, rest string) []string {
	if text == "" {
		return []string{strings.TrimRight(first, " ")}
	}
	var lines []string
	if w.width <= 0 {
		lines = []string{text}
	} else {
		limit := max(w.width-runewidth.StringWidth(first), 1)
		lines = strings.Split(wordwrap.String(text, limit), "\n")
	}
	for i := range lines {
		prefix := rest
		if i == 0 {
			prefix = first
		}
		lines[i] = prefix + strings.TrimRight(lines[i], " ")
	}
	return lines
}

func (w *TextWriter) styleAll(style lipgloss.Style, lines []string) []string {
	for i, l := range lines {
		lines[i] = style.Render(l)
	}
	return lines
}

func headingLevel(t model.LineType) int {
	switch t {
	case model.LineHeading2:
		return 2
	case model.LineHeading3:
		return 3
	default:
		return 1
	}
}
