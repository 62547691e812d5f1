package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/uri"
)

func mustURL(t *testing.T, raw string) *uri.URL {
	t.Helper()

	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

func TestParseGemtext(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "gemini://example.org/dir/index.gmi")

	t.Run("line types", func(t *testing.T) {
		t.Parallel()

		body := strings.Join([]string{
			"# Title",
			"## Section",
			"### Sub",
			"* item",
			"> quoted",
			"plain",
			"=> /about About",
			"=>relative.gmi",
			"=>\tgemini://other.org/  Other  site ",
			"=>",
			"",
		}, "\r\n")

		page, err := Parse("text/gemini", []byte(body), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.Line{
			{Type: model.LineHeading1, Text: "Title"},
			{Type: model.LineHeading2, Text: "Section"},
			{Type: model.LineHeading3, Text: "Sub"},
			{Type: model.LineListItem, Text: "item"},
			{Type: model.LineQuote, Text: "quoted"},
			{Type: model.LineText, Text: "plain"},
			{Type: model.LineLink, Text: "About", LinkID: 1},
			{Type: model.LineLink, Text: "relative.gmi", LinkID: 2},
			{Type: model.LineLink, Text: "Other  site", LinkID: 3},
			{Type: model.LineText, Text: "=>"},
		}
		if len(page.Lines) != len(want) {
			t.Fatalf("expected %d lines, got %d: %+v", len(want), len(page.Lines), page.Lines)
		}
		for i := range want {
			if page.Lines[i] != want[i] {
				t.Errorf("line %d: got %+v, want %+v", i, page.Lines[i], want[i])
			}
		}

		wantLinks := []string{
			"gemini://example.org/about",
			"gemini://example.org/dir/relative.gmi",
			"gemini://other.org/",
		}
		for i, w := range wantLinks {
			if got := page.Links[i].Resolved(); got != w {
				t.Errorf("link %d: got %q, want %q", i+1, got, w)
			}
			if page.Links[i].ID != i+1 {
				t.Errorf("link %d has ID %d", i+1, page.Links[i].ID)
			}
		}
		if page.Title != "Title" {
			t.Errorf("unexpected title %q", page.Title)
		}
		if page.MIME != "text/gemini" || page.Charset != "utf-8" {
			t.Errorf("unexpected MIME %q charset %q", page.MIME, page.Charset)
		}
	})

	t.Run("about link and plain line", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("text/gemini", []byte("=> /about About\nplain line"), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Lines) != 2 || len(page.Links) != 1 {
			t.Fatalf("expected 2 lines and 1 link, got %+v", page)
		}
		if page.Lines[1].Type != model.LineText || page.Lines[1].Text != "plain line" {
			t.Errorf("unexpected second line %+v", page.Lines[1])
		}
	})

	t.Run("preformatted blocks are not interpreted", func(t *testing.T) {
		t.Parallel()

		body := "```ascii art\n# not a heading\n=> /not-a-link\n```\n=> /link"
		page, err := Parse("text/gemini", []byte(body), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.Line{
			{Type: model.LinePreformatToggle, Text: "ascii art"},
			{Type: model.LinePreformatted, Text: "# not a heading"},
			{Type: model.LinePreformatted, Text: "=> /not-a-link"},
			{Type: model.LinePreformatToggle},
			{Type: model.LineLink, Text: "/link", LinkID: 1},
		}
		for i := range want {
			if page.Lines[i] != want[i] {
				t.Errorf("line %d: got %+v, want %+v", i, page.Lines[i], want[i])
			}
		}
		if page.LinkCount() != 1 {
			t.Errorf("expected 1 link, got %d", page.LinkCount())
		}
		if page.Title != base.String() {
			t.Errorf("expected URL as title, got %q", page.Title)
		}
	})

	t.Run("preformatted state does not leak between parses", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse("text/gemini", []byte("```\nunterminated"), base); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		page, err := Parse("text/gemini", []byte("# Heading"), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Lines[0].Type != model.LineHeading1 {
			t.Errorf("expected heading, got %v", page.Lines[0].Type)
		}
	})

	t.Run("malformed target keeps its number", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("", []byte("=> gemini://[bad Broken\n=> /ok OK"), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.LinkCount() != 2 {
			t.Fatalf("expected 2 links, got %d", page.LinkCount())
		}
		broken, _ := page.Link(1)
		if broken.URL != nil {
			t.Errorf("expected nil URL for malformed target, got %v", broken.URL)
		}
		ok, _ := page.Link(2)
		if ok.ID != 2 || ok.Resolved() != "gemini://example.org/ok" {
			t.Errorf("unexpected second link %+v", ok)
		}
	})
}

func TestParsePlainAndBinary(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "gemini://example.org/file")

	t.Run("text/plain lines are never interpreted", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("text/plain", []byte("# not heading\n=> /x not link\n"), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.LinkCount() != 0 {
			t.Errorf("expected no links, got %d", page.LinkCount())
		}
		for _, l := range page.Lines {
			if l.Type != model.LineText {
				t.Errorf("expected text line, got %v", l.Type)
			}
		}
	})

	t.Run("binary types produce one info line", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("image/png", make([]byte, 2048), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Lines) != 1 || page.Lines[0].Type != model.LineInfo {
			t.Fatalf("expected single info line, got %+v", page.Lines)
		}
		if !strings.Contains(page.Lines[0].Text, "image/png") || !strings.Contains(page.Lines[0].Text, "2.0 KiB") {
			t.Errorf("unexpected info text %q", page.Lines[0].Text)
		}
		if page.Size != 2048 {
			t.Errorf("expected size 2048, got %d", page.Size)
		}
	})

	t.Run("invalid MIME", func(t *testing.T) {
		t.Parallel()

		_, err := Parse("text/", nil, base)
		if !errors.Is(err, ErrInvalidMIME) {
			t.Errorf("expected ErrInvalidMIME, got %v", err)
		}
	})
}

func TestParseHTML(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "gemini://example.org/page.html")
	body := `<html><head><title> Home </title><style>p{}</style></head>
<body><h1>Welcome</h1><p>Hello <b>there</b>.</p>
<ul><li>one</li><li>two</li></ul>
<a href="/next">Next page</a><a href="#top">Top</a></body></html>`

	t.Run("rendered when enabled", func(t *testing.T) {
		t.Parallel()

		page, err := New(WithHTMLRendering(true)).Parse("text/html; charset=utf-8", []byte(body), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Title != "Home" {
			t.Errorf("expected title from <title>, got %q", page.Title)
		}

		want := []model.Line{
			{Type: model.LineHeading1, Text: "Welcome"},
			{Type: model.LineText, Text: "Hello there ."},
			{Type: model.LineListItem, Text: "one"},
			{Type: model.LineListItem, Text: "two"},
			{Type: model.LineLink, Text: "Next page", LinkID: 1},
			{Type: model.LineText, Text: "Top"},
		}
		if len(page.Lines) != len(want) {
			t.Fatalf("expected %d lines, got %+v", len(want), page.Lines)
		}
		for i := range want {
			if page.Lines[i] != want[i] {
				t.Errorf("line %d: got %+v, want %+v", i, page.Lines[i], want[i])
			}
		}
		if link, _ := page.Link(1); link.Resolved() != "gemini://example.org/next" {
			t.Errorf("unexpected link %q", link.Resolved())
		}
	})

	t.Run("plain text when disabled", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("text/html", []byte(body), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.LinkCount() != 0 {
			t.Errorf("expected no links, got %d", page.LinkCount())
		}
		if !strings.Contains(page.Lines[0].Text, "<html>") {
			t.Errorf("expected raw markup, got %q", page.Lines[0].Text)
		}
	})
}

func TestParseMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		meta        string
		wantType    string
		wantCharset string
		wantLang    string
	}{
		{meta: "", wantType: "text/gemini", wantCharset: "utf-8"},
		{meta: "text/gemini; lang=en", wantType: "text/gemini", wantCharset: "utf-8", wantLang: "en"},
		{meta: "Text/Plain; Charset=ISO-8859-1", wantType: "text/plain", wantCharset: "iso-8859-1"},
		{meta: "image/png", wantType: "image/png", wantCharset: "utf-8"},
	}

	for _, tt := range tests {
		mt, err := ParseMIME(tt.meta)
		if err != nil {
			t.Fatalf("ParseMIME(%q): unexpected error: %v", tt.meta, err)
		}
		if mt.Type != tt.wantType || mt.Charset != tt.wantCharset || mt.Lang != tt.wantLang {
			t.Errorf("ParseMIME(%q) = %+v", tt.meta, mt)
		}
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("latin1", func(t *testing.T) {
		t.Parallel()

		if got := Decode([]byte{'c', 'a', 'f', 0xe9}, "iso-8859-1"); got != "café" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("shift_jis", func(t *testing.T) {
		t.Parallel()

		if got := Decode([]byte{0x82, 0xa0}, "shift_jis"); got != "あ" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("unknown charset falls back to utf-8 with replacement", func(t *testing.T) {
		t.Parallel()

		got := Decode([]byte{'o', 'k', 0xff}, "x-unknown")
		if got != "ok\uFFFD" {
			t.Errorf("got %q", got)
		}
	})
}
