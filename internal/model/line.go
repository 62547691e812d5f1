package model

import "fmt"

// LineType is the kind of a rendered line.
type LineType int

const (
	// LineText is a plain paragraph line.
	LineText LineType = iota

	// LineLink is a "=>" link line. Its LinkID points into Page.Links.
	LineLink

	// LineHeading1 is a "#" heading.
	LineHeading1

	// LineHeading2 is a "##" heading.
	LineHeading2

	// LineHeading3 is a "###" heading.
	LineHeading3

	// LineListItem is a "* " list item.
	LineListItem

	// LineQuote is a ">" quote line.
	LineQuote

	// LinePreformatToggle opens or closes a preformatted block. Its Text
	// holds the alt text of an opening toggle.
	LinePreformatToggle

	// LinePreformatted is a line inside a preformatted block, kept verbatim.
	LinePreformatted

	// LineInfo is a message produced by the client itself, such as the
	// summary of a non-text response.
	LineInfo
)

var lineTypeNames = map[LineType]string{
	LineText:            "text",
	LineLink:            "link",
	LineHeading1:        "heading1",
	LineHeading2:        "heading2",
	LineHeading3:        "heading3",
	LineListItem:        "list",
	LineQuote:           "quote",
	LinePreformatToggle: "preformat-toggle",
	LinePreformatted:    "preformatted",
	LineInfo:            "info",
}

// String returns the name of the line type.
func (t LineType) String() string {
	if name, ok := lineTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the line type by name.
func (t LineType) MarshalText() ([]byte, error) {
	name, ok := lineTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown line type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a line type name.
func (t *LineType) UnmarshalText(text []byte) error {
	for lt, name := range lineTypeNames {
		if name == string(text) {
			*t = lt
			return nil
		}
	}
	return fmt.Errorf("unknown line type %q", text)
}

// IsHeading reports whether t is one of the heading levels.
func (t LineType) IsHeading() bool {
	return t == LineHeading1 || t == LineHeading2 || t == LineHeading3
}

// Line is one rendered line of a page.
type Line struct {
	Type LineType `json:"type"`

	// Text is the line content with the gemtext prefix removed. For link
	// lines it is the label, or the target when the label is empty.
	Text string `json:"text"`

	// LinkID is the 1-based link number of a link line, 0 otherwise.
	LinkID int `json:"link_id,omitempty"`
}
