package parser

import (
	"fmt"
	"strings"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/uri"
)

// Parser converts bodies to pages. The zero value is not usable; use New.
type Parser struct {
	renderHTML bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithHTMLRendering makes text/html pages render as text with numbered
// links instead of raw markup.
func WithHTMLRendering(enabled bool) Option {
	return func(p *Parser) {
		p.renderHTML = enabled
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse parses body with the default parser. See Parser.Parse.
func Parse(mimeType string, body []byte, base *uri.URL) (*model.Page, error) {
	return defaultParser.Parse(mimeType, body, base)
}

// Parse builds a page from a success response body. mimeType is the raw
// response meta; base is the URL the body was fetched from and is used to
// resolve relative links.
func (p *Parser) Parse(mimeType string, body []byte, base *uri.URL) (*model.Page, error) {
	mt, err := ParseMIME(mimeType)
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		URL:  base,
		MIME: mt.Type,
		Size: len(body),
	}

	switch {
	case mt.Type == Gemtext:
		page.Charset = mt.Charset
		parseGemtext(page, Decode(body, mt.Charset))
	case mt.Type == "text/html" && p.renderHTML:
		page.Charset = mt.Charset
		if err := parseHTML(page, Decode(body, mt.Charset)); err != nil {
			return nil, err
		}
	case mt.IsText():
		page.Charset = mt.Charset
		parsePlain(page, Decode(body, mt.Charset))
	default:
		page.Lines = []model.Line{{
			Type: model.LineInfo,
			Text: fmt.Sprintf("%s content (%s) cannot be displayed", mt.Type, formatSize(len(body))),
		}}
	}

	if page.Title == "" {
		page.Title = page.Address()
	}
	return page, nil
}

// splitLines splits text on LF, dropping a trailing CR from each line and
// the empty line after a final newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func parsePlain(page *model.Page, text string) {
	lines := splitLines(text)
	page.Lines = make([]model.Line, 0, len(lines))
	for _, l := range lines {
		page.Lines = append(page.Lines, model.Line{Type: model.LineText, Text: l})
	}
}

// addLink resolves target against the page URL and appends it to the
// page. A target that does not resolve keeps its number with a nil URL.
func addLink(page *model.Page, target, label string) int {
	link := model.Link{
		ID:     len(page.Links) + 1,
		Target: target,
		Label:  label,
	}
	if u, err := uri.Resolve(page.URL, target); err == nil {
		link.URL = u
	}
	page.Links = append(page.Links, link)
	return link.ID
}

func formatSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
