package navigation

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/parser"
	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// Internal pages served by the engine itself. They are never cached.
const (
	AboutHistory = "about:history"
	AboutVersion = "about:version"
)

// HistoryPage returns the about:history page listing the visited URLs,
// newest first.
func (e *Engine) HistoryPage() *model.Page {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, _ := uri.Parse(AboutHistory)
	return e.gemtextPage(u, e.historyGemtext())
}

// aboutPage builds an internal page. It must be called with e.mu held.
func (e *Engine) aboutPage(u *uri.URL) (*model.Page, error) {
	switch strings.ToLower(u.Opaque) {
	case "history":
		return e.gemtextPage(u, e.historyGemtext()), nil
	case "version":
		return e.gemtextPage(u, e.versionGemtext()), nil
	default:
		return nil, &StatusError{
			URL:    u,
			Status: protocol.StatusPermanentFailure,
			Code:   protocol.CodeNotFound,
			Meta:   "unknown internal page",
		}
	}
}

func (e *Engine) historyGemtext() string {
	var sb strings.Builder
	sb.WriteString("# History\n\n")

	entries := e.history.Entries()
	if len(entries) == 0 {
		sb.WriteString("Nothing visited yet.\n")
		return sb.String()
	}
	current := e.history.Position()
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		label := entry.VisitedAt.Format("2006-01-02 15:04")
		if i == current {
			label += " (current)"
		}
		fmt.Fprintf(&sb, "=> %s %s %s\n", entry.URL, label, entry.URL)
	}
	return sb.String()
}

func (e *Engine) versionGemtext() string {
	var sb strings.Builder
	sb.WriteString("# bebop\n\n")
	fmt.Fprintf(&sb, "* Version: %s\n", e.version)
	fmt.Fprintf(&sb, "* Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "* Max redirects: %d\n", e.maxRedirects)
	fmt.Fprintf(&sb, "* Link selection: %s\n", e.policy)
	sb.WriteString("\n=> " + AboutHistory + " History\n")
	return sb.String()
}

// gemtextPage parses an internal gemtext document. It cannot fail.
func (e *Engine) gemtextPage(u *uri.URL, text string) *model.Page {
	page, err := e.parser.Parse(parser.Gemtext, []byte(text), u)
	if err != nil {
		return &model.Page{URL: u, MIME: parser.Gemtext, Title: u.String()}
	}
	return page
}
