package model

import (
	"strconv"
	"strings"

	"github.com/nao1215/bebop/internal/uri"
)

// Page is a parsed success response.
type Page struct {
	// URL is the URL the page was fetched from, after redirects.
	URL *uri.URL `json:"-"`

	// MIME is the media type without parameters, e.g. "text/gemini".
	MIME string `json:"mime"`

	// Charset is the charset the body was decoded from.
	Charset string `json:"charset,omitempty"`

	// Title is the first level-1 heading, or the URL when there is none.
	Title string `json:"title"`

	Lines []Line `json:"lines"`
	Links []Link `json:"links,omitempty"`

	// Size is the length of the raw body in bytes.
	Size int `json:"size"`
}

// Link is a link line of a page.
type Link struct {
	// ID is the 1-based position of the link on the page.
	ID int `json:"id"`

	// Target is the link target exactly as written.
	Target string `json:"target"`

	// URL is Target resolved against the page URL. It is nil when the
	// target could not be parsed.
	URL *uri.URL `json:"-"`

	// Label is the optional link text.
	Label string `json:"label,omitempty"`
}

// Resolved returns the absolute link URL as a string, or an empty string
// for a malformed target.
func (l Link) Resolved() string {
	if l.URL == nil {
		return ""
	}
	return l.URL.String()
}

// Display returns the label, or the target when there is no label.
func (l Link) Display() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Target
}

// Address returns the page URL as a string.
func (p *Page) Address() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}

// Link returns the link with the given 1-based ID.
func (p *Page) Link(id int) (Link, bool) {
	if id < 1 || id > len(p.Links) {
		return Link{}, false
	}
	return p.Links[id-1], true
}

// LinkCount returns the number of links on the page.
func (p *Page) LinkCount() int {
	return len(p.Links)
}

// IsGemtext reports whether the page was parsed as text/gemini.
func (p *Page) IsGemtext() bool {
	return p.MIME == "text/gemini"
}

// Text returns the page as plain text, one line per Line. Link lines are
// written as "[id] label".
func (p *Page) Text() string {
	var sb strings.Builder
	for _, l := range p.Lines {
		switch l.Type {
		case LineLink:
			sb.WriteString("[")
			sb.WriteString(strconv.Itoa(l.LinkID))
			sb.WriteString("] ")
			sb.WriteString(l.Text)
		case LinePreformatToggle:
			continue
		default:
			sb.WriteString(l.Text)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
