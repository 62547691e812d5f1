package uri

import (
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "scheme and host are lower-cased and default port dropped",
			raw:  "GEMINI://Example.ORG:1965/a/./b/../c",
			want: "gemini://example.org/a/c",
		},
		{
			name: "empty path becomes root",
			raw:  "gemini://example.org",
			want: "gemini://example.org/",
		},
		{
			name: "non-default port is kept",
			raw:  "gemini://example.org:1966/x",
			want: "gemini://example.org:1966/x",
		},
		{
			name: "ipv6 host",
			raw:  "gemini://[::1]:1966/",
			want: "gemini://[::1]:1966/",
		},
		{
			name: "surrounding white space is ignored",
			raw:  "  gemini://example.org/  \n",
			want: "gemini://example.org/",
		},
		{
			name: "query and fragment are kept",
			raw:  "gemini://example.org/search?term#top",
			want: "gemini://example.org/search?term#top",
		},
		{
			name: "opaque about url",
			raw:  "about:version",
			want: "about:version",
		},
		{
			name: "gopher default port dropped",
			raw:  "gopher://example.org:70/1/",
			want: "gopher://example.org/1/",
		},
		{
			name: "file url without host",
			raw:  "file:///tmp/notes.gmi",
			want: "file:///tmp/notes.gmi",
		},
		{
			name: "internationalized host is folded",
			raw:  "gemini://BÜCHER.example/",
			want: "gemini://xn--bcher-kva.example/",
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "missing scheme",
			raw:     "example.org/page",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "missing host",
			raw:     "gemini:///page",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "opaque gemini url",
			raw:     "gemini:foo",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "opaque gopher url",
			raw:     "gopher:x",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "about without page name",
			raw:     "about:",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "port out of range",
			raw:     "gemini://example.org:99999/",
			wantErr: ErrMalformedURL,
		},
		{
			name:    "userinfo in gemini url",
			raw:     "gemini://user@example.org/",
			wantErr: ErrMalformedURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := Parse(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare host", raw: "example.org", want: "gemini://example.org/"},
		{name: "bare host and path", raw: "example.org/page.gmi", want: "gemini://example.org/page.gmi"},
		{name: "scheme-relative", raw: "//example.org/x", want: "gemini://example.org/x"},
		{name: "absolute url is kept", raw: "gopher://example.org/1/", want: "gopher://example.org/1/"},
		{name: "about page", raw: "about:history", want: "about:history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := ParseInput(tt.raw, SchemeGemini)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("empty input fails", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseInput("   ", SchemeGemini); !errors.Is(err, ErrMalformedURL) {
			t.Errorf("expected ErrMalformedURL, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	base, err := Parse("gemini://example.org/dir/index.gmi?old#frag")
	if err != nil {
		t.Fatalf("failed to parse base: %v", err)
	}

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "parent relative", ref: "../about.gmi", want: "gemini://example.org/about.gmi"},
		{name: "absolute path", ref: "/about", want: "gemini://example.org/about"},
		{name: "relative path", ref: "other.gmi", want: "gemini://example.org/dir/other.gmi"},
		{name: "current directory", ref: "./", want: "gemini://example.org/dir/"},
		{name: "query only", ref: "?new", want: "gemini://example.org/dir/index.gmi?new"},
		{name: "fragment only", ref: "#top", want: "gemini://example.org/dir/index.gmi?old#top"},
		{name: "scheme-relative", ref: "//other.org/x", want: "gemini://other.org/x"},
		{name: "absolute url", ref: "gopher://Other.org:70/0/file", want: "gopher://other.org/0/file"},
		{name: "too many parents stop at root", ref: "../../../../g", want: "gemini://example.org/g"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := Resolve(base, tt.ref)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("sibling document of a nested page", func(t *testing.T) {
		t.Parallel()

		b, _ := Parse("gemini://example.org/dir/index.gmi")
		u, err := Resolve(b, "../about.gmi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.String() != "gemini://example.org/about.gmi" {
			t.Errorf("unexpected result %q", u.String())
		}
	})

	t.Run("malformed reference", func(t *testing.T) {
		t.Parallel()
		if _, err := Resolve(base, "gemini://bad host/"); !errors.Is(err, ErrMalformedURL) {
			t.Errorf("expected ErrMalformedURL, got %v", err)
		}
	})

	t.Run("opaque reference without host", func(t *testing.T) {
		t.Parallel()
		for _, ref := range []string{"gemini:foo", "finger:user"} {
			if _, err := Resolve(base, ref); !errors.Is(err, ErrMalformedURL) {
				t.Errorf("%s: expected ErrMalformedURL, got %v", ref, err)
			}
		}
	})

	t.Run("nil base parses the reference", func(t *testing.T) {
		t.Parallel()
		u, err := Resolve(nil, "gemini://example.org")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.String() != "gemini://example.org/" {
			t.Errorf("unexpected result %q", u.String())
		}
	})
}

func TestRemoveDotSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "/", want: "/"},
		{in: "/a/b/c/./../../g", want: "/a/g"},
		{in: "mid/content=5/../6", want: "mid/6"},
		{in: "../../../../g", want: "g"},
		{in: "/a/b/..", want: "/a/"},
		{in: "/.", want: "/"},
		{in: "/a/./b/", want: "/a/b/"},
		{in: "/a.gmi", want: "/a.gmi"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := RemoveDotSegments(tt.in); got != tt.want {
				t.Errorf("RemoveDotSegments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestURL_ParentAndRoot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw        string
		wantParent string
		wantRoot   string
	}{
		{raw: "gemini://example.org/a/index.gmi?q#f", wantParent: "gemini://example.org/a/", wantRoot: "gemini://example.org/"},
		{raw: "gemini://example.org/a/", wantParent: "gemini://example.org/", wantRoot: "gemini://example.org/"},
		{raw: "gemini://example.org/", wantParent: "gemini://example.org/", wantRoot: "gemini://example.org/"},
		{raw: "gemini://example.org:1966/a/b/c", wantParent: "gemini://example.org:1966/a/b/", wantRoot: "gemini://example.org:1966/"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			u, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := u.Parent().String(); got != tt.wantParent {
				t.Errorf("Parent() = %q, want %q", got, tt.wantParent)
			}
			if got := u.Root().String(); got != tt.wantRoot {
				t.Errorf("Root() = %q, want %q", got, tt.wantRoot)
			}
		})
	}
}

func TestURL_Methods(t *testing.T) {
	t.Parallel()

	u, err := Parse("gemini://example.org/search#results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("WithQuery percent-encodes input and drops fragment", func(t *testing.T) {
		t.Parallel()
		q := u.WithQuery("hello world")
		if got := q.String(); got != "gemini://example.org/search?hello%20world" {
			t.Errorf("unexpected url %q", got)
		}
		if got := q.Query(); got != "hello world" {
			t.Errorf("expected decoded query, got %q", got)
		}
	})

	t.Run("Request omits fragment", func(t *testing.T) {
		t.Parallel()
		if got := u.Request(); got != "gemini://example.org/search" {
			t.Errorf("unexpected request %q", got)
		}
	})

	t.Run("HostPort uses scheme default", func(t *testing.T) {
		t.Parallel()
		if got := u.HostPort(); got != "example.org:1965" {
			t.Errorf("unexpected host port %q", got)
		}
	})

	t.Run("Equal compares normalized forms", func(t *testing.T) {
		t.Parallel()
		other := &URL{Scheme: "GEMINI", Host: "EXAMPLE.org", Port: 1965, Path: "/x/../search", Fragment: "results"}
		if !u.Equal(other) {
			t.Errorf("expected %q to equal %q", u, other)
		}
	})

	t.Run("Key ignores fragment", func(t *testing.T) {
		t.Parallel()
		if u.Key() != u.WithoutFragment().Key() {
			t.Error("expected equal keys")
		}
	})

	t.Run("DefaultPort", func(t *testing.T) {
		t.Parallel()
		for scheme, want := range map[string]int{"gemini": 1965, "gopher": 70, "finger": 79, "spartan": 0} {
			if got := DefaultPort(scheme); got != want {
				t.Errorf("DefaultPort(%q) = %d, want %d", scheme, got, want)
			}
		}
	})
}

// TestResolveNormalizeIdempotent checks that a resolved URL is already in
// normal form and survives a String/Parse round trip unchanged.
func TestResolveNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	segment := rapid.SampledFrom([]string{"a", "b", "dir", ".", "..", "x.gmi", "%20y", "Z"})

	rapid.Check(t, func(t *rapid.T) {
		host := rapid.StringMatching(`[A-Za-z][A-Za-z0-9]{0,7}(\.[a-z]{2,4})?`).Draw(t, "host")
		port := rapid.SampledFrom([]int{0, 1965, 1966}).Draw(t, "port")
		basePath := rapid.SliceOfN(segment, 0, 4).Draw(t, "basePath")
		refPath := rapid.SliceOfN(segment, 1, 4).Draw(t, "refPath")
		absolute := rapid.Bool().Draw(t, "absolute")
		query := rapid.StringMatching(`[a-z0-9]{0,5}`).Draw(t, "query")

		base := Normalize(&URL{
			Scheme: SchemeGemini,
			Host:   host,
			Port:   port,
			Path:   "/" + strings.Join(basePath, "/"),
		})

		ref := strings.Join(refPath, "/")
		if absolute {
			ref = "/" + ref
		}
		if query != "" {
			ref += "?" + query
		}

		got, err := Resolve(base, ref)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", base, ref, err)
		}

		if again := Normalize(got); again.String() != got.String() {
			t.Fatalf("normalize not idempotent: %q -> %q", got, again)
		}

		reparsed, err := Parse(got.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", got, err)
		}
		if reparsed.String() != got.String() {
			t.Fatalf("round trip changed url: %q -> %q", got, reparsed)
		}
		if strings.Contains(got.Path, "/./") || strings.Contains(got.Path, "/../") {
			t.Fatalf("dot segments left in %q", got.Path)
		}
	})
}
