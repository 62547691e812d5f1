package parser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/bebop/internal/model"
)

// HTML element names with their own line type.
const (
	htmlElementAnchor = "a"
	htmlElementTitle  = "title"
	htmlElementPre    = "pre"
	htmlElementLI     = "li"
	htmlElementQuote  = "blockquote"
)

// blockElements end the current line.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "table": true,
	"ul": true, "ol": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "hr": true, "dl": true, "dt": true, "dd": true,
}

// skippedElements are never rendered.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// htmlRenderer walks an HTML tree and emits page lines.
type htmlRenderer struct {
	page    *model.Page
	current strings.Builder
	kind    model.LineType
}

// parseHTML renders an HTML document as text lines. Every anchor with an
// href becomes a numbered link on its own line.
func parseHTML(page *model.Page, text string) error {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	r := &htmlRenderer{page: page}
	page.Lines = []model.Line{}
	r.walk(doc)
	r.flush()
	return nil
}

func (r *htmlRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.text(n.Data)
		return
	case html.ElementNode:
		if n.Data == htmlElementTitle {
			if r.page.Title == "" {
				r.page.Title = strings.TrimSpace(textContent(n))
			}
			return
		}
		if skippedElements[n.Data] {
			return
		}
		if r.element(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
	if n.Type == html.ElementNode && endsLine(n.Data) {
		r.flush()
	}
}

// element handles elements with their own line type. It reports whether
// the children were consumed.
func (r *htmlRenderer) element(n *html.Node) bool {
	switch {
	case n.Data == htmlElementAnchor:
		href := strings.TrimSpace(getAttr(n, "href"))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return false
		}
		r.flush()
		label := collapseSpace(textContent(n))
		id := addLink(r.page, href, label)
		if label == "" {
			label = href
		}
		r.page.Lines = append(r.page.Lines, model.Line{Type: model.LineLink, Text: label, LinkID: id})
		return true
	case n.Data == htmlElementPre:
		r.flush()
		r.page.Lines = append(r.page.Lines, model.Line{Type: model.LinePreformatToggle})
		for _, l := range splitLines(textContent(n)) {
			r.page.Lines = append(r.page.Lines, model.Line{Type: model.LinePreformatted, Text: l})
		}
		r.page.Lines = append(r.page.Lines, model.Line{Type: model.LinePreformatToggle})
		return true
	case n.Data == htmlElementLI:
		r.flush()
		r.kind = model.LineListItem
	case n.Data == htmlElementQuote:
		r.flush()
		r.kind = model.LineQuote
	case headingType(n.Data) != model.LineText:
		r.flush()
		r.kind = headingType(n.Data)
	case blockElements[n.Data]:
		r.flush()
	}
	return false
}

func (r *htmlRenderer) text(s string) {
	s = collapseSpace(s)
	if s == "" {
		return
	}
	if r.current.Len() > 0 {
		r.current.WriteByte(' ')
	}
	r.current.WriteString(s)
}

// flush ends the current line.
func (r *htmlRenderer) flush() {
	if r.current.Len() > 0 {
		line := model.Line{Type: r.kind, Text: r.current.String()}
		r.page.Lines = append(r.page.Lines, line)
		if line.Type == model.LineHeading1 && r.page.Title == "" {
			r.page.Title = line.Text
		}
	}
	r.current.Reset()
	r.kind = model.LineText
}

// endsLine reports whether the closing of tag ends the current line.
func endsLine(tag string) bool {
	return blockElements[tag] || tag == htmlElementLI || tag == htmlElementQuote || headingType(tag) != model.LineText
}

func headingType(tag string) model.LineType {
	switch tag {
	case "h1":
		return model.LineHeading1
	case "h2":
		return model.LineHeading2
	case "h3", "h4", "h5", "h6":
		return model.LineHeading3
	default:
		return model.LineText
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
