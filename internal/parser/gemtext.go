package parser

import (
	"strings"

	"github.com/nao1215/bebop/internal/model"
)

const (
	linkPrefix      = "=>"
	preformatToggle = "```"
)

// parseGemtext fills page with the lines and links of a text/gemini
// document. Nothing inside a preformatted block is interpreted.
func parseGemtext(page *model.Page, text string) {
	lines := splitLines(text)
	page.Lines = make([]model.Line, 0, len(lines))

	preformatted := false
	for _, raw := range lines {
		if strings.HasPrefix(raw, preformatToggle) {
			line := model.Line{Type: model.LinePreformatToggle}
			if !preformatted {
				line.Text = strings.TrimSpace(raw[len(preformatToggle):])
			}
			preformatted = !preformatted
			page.Lines = append(page.Lines, line)
			continue
		}
		if preformatted {
			page.Lines = append(page.Lines, model.Line{Type: model.LinePreformatted, Text: raw})
			continue
		}
		page.Lines = append(page.Lines, gemtextLine(page, raw))
	}

	for _, l := range page.Lines {
		if l.Type == model.LineHeading1 {
			page.Title = l.Text
			break
		}
	}
}

func gemtextLine(page *model.Page, raw string) model.Line {
	switch {
	case strings.HasPrefix(raw, linkPrefix):
		return linkLine(page, raw[len(linkPrefix):])
	case strings.HasPrefix(raw, "###"):
		return model.Line{Type: model.LineHeading3, Text: trimLeft(raw[3:])}
	case strings.HasPrefix(raw, "##"):
		return model.Line{Type: model.LineHeading2, Text: trimLeft(raw[2:])}
	case strings.HasPrefix(raw, "#"):
		return model.Line{Type: model.LineHeading1, Text: trimLeft(raw[1:])}
	case strings.HasPrefix(raw, "* "):
		return model.Line{Type: model.LineListItem, Text: trimLeft(raw[2:])}
	case strings.HasPrefix(raw, ">"):
		return model.Line{Type: model.LineQuote, Text: trimLeft(raw[1:])}
	default:
		return model.Line{Type: model.LineText, Text: raw}
	}
}

// linkLine parses the part of a link line after "=>": optional white
// space, the target, then an optional label. A link line without target
// is plain text.
func linkLine(page *model.Page, rest string) model.Line {
	rest = trimLeft(rest)
	if rest == "" {
		return model.Line{Type: model.LineText, Text: linkPrefix}
	}

	target, label := rest, ""
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		target, label = rest[:i], strings.TrimSpace(rest[i:])
	}

	id := addLink(page, target, label)
	text := label
	if text == "" {
		text = target
	}
	return model.Line{Type: model.LineLink, Text: text, LinkID: id}
}

func trimLeft(s string) string {
	return strings.TrimLeft(s, " \t")
}
