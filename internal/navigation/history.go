package navigation

import (
	"time"

	"github.com/nao1215/bebop/internal/uri"
)

// DefaultHistoryLimit is the number of entries kept before the oldest are
// dropped.
const DefaultHistoryLimit = 1000

// Entry is a visited page.
type Entry struct {
	URL *uri.URL

	// Cursor is the first visible line when the page was left.
	Cursor int

	VisitedAt time.Time
}

// Cursor is the reading position on the current page.
type Cursor struct {
	// Line is the index of the first visible line.
	Line int
}

// History is a stack of visited pages with a position. Pushing from any
// position but the tip drops the entries after it. The zero value is an
// empty, unlimited history.
type History struct {
	entries []Entry
	pos     int
	limit   int
}

// NewHistory returns an empty history keeping at most limit entries. A
// non-positive limit means no limit.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Push adds e after the current position and makes it current.
func (h *History) Push(e Entry) {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.pos+1]
	}
	h.entries = append(h.entries, e)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append([]Entry(nil), h.entries[len(h.entries)-h.limit:]...)
	}
	h.pos = len(h.entries) - 1
}

// Current returns the current entry.
func (h *History) Current() (Entry, bool) {
	return h.Peek(0)
}

// Peek returns the entry offset positions away from the current one
// without moving.
func (h *History) Peek(offset int) (Entry, bool) {
	i := h.pos + offset
	if len(h.entries) == 0 || i < 0 || i >= len(h.entries) {
		return Entry{}, false
	}
	return h.entries[i], true
}

// Move shifts the position by offset. It reports false, without moving,
// when the target is out of range.
func (h *History) Move(offset int) bool {
	if _, ok := h.Peek(offset); !ok {
		return false
	}
	h.pos += offset
	return true
}

// CanBack reports whether there is an entry before the current one.
func (h *History) CanBack() bool {
	_, ok := h.Peek(-1)
	return ok
}

// CanForward reports whether there is an entry after the current one.
func (h *History) CanForward() bool {
	_, ok := h.Peek(1)
	return ok
}

// SetCursor records the reading position of the current entry.
func (h *History) SetCursor(line int) {
	if len(h.entries) == 0 {
		return
	}
	if line < 0 {
		line = 0
	}
	h.entries[h.pos].Cursor = line
}

// Entries returns a copy of all entries, oldest first.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Position returns the index of the current entry, or -1 when empty.
func (h *History) Position() int {
	if len(h.entries) == 0 {
		return -1
	}
	return h.pos
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}
