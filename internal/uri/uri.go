package uri

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Well-known schemes and their default ports.
const (
	SchemeGemini = "gemini"
	SchemeGopher = "gopher"
	SchemeFinger = "finger"
	SchemeFile   = "file"
	SchemeAbout  = "about"

	GeminiDefaultPort = 1965
	GopherDefaultPort = 70
	FingerDefaultPort = 79
)

// defaultPorts maps a scheme to the port that is omitted from its normalized form.
var defaultPorts = map[string]int{
	SchemeGemini: GeminiDefaultPort,
	SchemeGopher: GopherDefaultPort,
	SchemeFinger: FingerDefaultPort,
	"http":       80,
	"https":      443,
}

// DefaultPort returns the default port of scheme, or 0 if it has none.
func DefaultPort(scheme string) int {
	return defaultPorts[strings.ToLower(scheme)]
}

// URL is a parsed absolute URL.
//
// Path, RawQuery and Fragment are kept in their escaped form so that a
// URL survives a String/Parse round trip byte for byte. Port is 0 when
// the URL does not carry an explicit port.
type URL struct {
	// Scheme is the lower-case scheme without the trailing colon.
	Scheme string

	// Host is the lower-case host name or IP address, without brackets.
	Host string

	// Port is the explicit port, or 0 when the scheme default applies.
	Port int

	// Path is the escaped hierarchical path.
	Path string

	// RawQuery is the escaped query without the leading '?'.
	RawQuery string

	// Fragment is the escaped fragment without the leading '#'.
	Fragment string

	// Opaque holds the scheme-specific part of non-hierarchical URLs
	// such as "about:history".
	Opaque string
}

// Parse parses raw as an absolute URL and returns it normalized.
// Leading and trailing white space is ignored.
func Parse(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedURL)
	}

	std, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	if std.Scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrMalformedURL, raw)
	}

	u, err := fromStd(std)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	if err := checkAuthority(u); err != nil {
		return nil, fmt.Errorf("%w: %q %v", ErrMalformedURL, raw, err)
	}
	if u.Scheme == SchemeGemini && std.User != nil {
		return nil, fmt.Errorf("%w: %q: userinfo is not allowed in gemini URLs", ErrMalformedURL, raw)
	}

	return Normalize(u), nil
}

// ParseInput parses text typed by a user. Input without a scheme is
// assumed to use defaultScheme, so "example.org/page" becomes
// "gemini://example.org/page" when defaultScheme is "gemini".
func ParseInput(raw, defaultScheme string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, fmt.Errorf("%w: empty input", ErrMalformedURL)
	case strings.Contains(raw, "://"), hasOpaqueScheme(raw):
		return Parse(raw)
	case strings.HasPrefix(raw, "//"):
		return Parse(defaultScheme + ":" + raw)
	default:
		return Parse(defaultScheme + "://" + raw)
	}
}

// hasOpaqueScheme reports whether raw starts with a scheme that never
// carries an authority, such as "about:".
func hasOpaqueScheme(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), SchemeAbout+":")
}

// Resolve resolves ref against base as described in RFC 3986 section 5.2
// and returns the normalized result. An absolute ref is returned as is
// (normalized). Scheme-relative ("//host/p"), absolute-path ("/p"),
// relative-path ("p", "../p"), query-only ("?q") and fragment-only ("#f")
// references are all supported.
func Resolve(base *URL, ref string) (*URL, error) {
	if base == nil {
		return Parse(ref)
	}

	ref = strings.TrimSpace(ref)
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURL, ref, err)
	}
	if r.Scheme != "" {
		return Parse(ref)
	}

	b, err := base.std()
	if err != nil {
		return nil, fmt.Errorf("%w: base %q: %v", ErrMalformedURL, base.String(), err)
	}

	resolved, err := fromStd(b.ResolveReference(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURL, ref, err)
	}
	if err := checkAuthority(resolved); err != nil {
		return nil, fmt.Errorf("%w: %q resolves to a URL that %v", ErrMalformedURL, ref, err)
	}
	return Normalize(resolved), nil
}

// checkAuthority reports an error for a URL without a host. Only about:
// URLs are opaque, and only file: URLs may have an empty host.
func checkAuthority(u *URL) error {
	scheme := strings.ToLower(u.Scheme)
	switch {
	case u.Opaque != "" && scheme != SchemeAbout:
		return errors.New("has no host")
	case u.Opaque == "" && scheme == SchemeAbout:
		return errors.New("has no page name")
	case u.Opaque == "" && u.Host == "" && scheme != SchemeFile:
		return errors.New("has no host")
	}
	return nil
}

// Normalize returns a normalized copy of u. It is idempotent.
func Normalize(u *URL) *URL {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = normalizeHost(n.Host)
	if n.Port != 0 && n.Port == DefaultPort(n.Scheme) {
		n.Port = 0
	}
	if n.Opaque == "" {
		n.Path = RemoveDotSegments(n.Path)
		if n.Path == "" && n.Host != "" {
			n.Path = "/"
		}
	}
	return &n
}

// normalizeHost lower-cases host and folds internationalized names to
// their ASCII form. Names that IDNA rejects are only lower-cased.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	if isASCII(host) {
		return host
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// RemoveDotSegments implements the algorithm of RFC 3986 section 5.2.4.
func RemoveDotSegments(path string) string {
	if !strings.Contains(path, ".") {
		return path
	}

	var out []string
	in := path
	for in != "" {
		switch {
		case strings.HasPrefix(in, "../"):
			in = in[3:]
		case strings.HasPrefix(in, "./"):
			in = in[2:]
		case strings.HasPrefix(in, "/./"):
			in = in[2:]
		case in == "/.":
			in = "/"
		case strings.HasPrefix(in, "/../"):
			in = in[3:]
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "/..":
			in = "/"
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "." || in == "..":
			in = ""
		default:
			// Move the first segment, including its leading slash, to the output.
			start := 0
			if in[0] == '/' {
				start = 1
			}
			end := strings.IndexByte(in[start:], '/')
			if end == -1 {
				end = len(in)
			} else {
				end += start
			}
			out = append(out, in[:end])
			in = in[end:]
		}
	}
	return strings.Join(out, "")
}

// EffectivePort returns the explicit port, or the scheme default.
func (u *URL) EffectivePort() int {
	if u.Port != 0 {
		return u.Port
	}
	return DefaultPort(u.Scheme)
}

// HostPort returns "host:port" suitable for net.Dial.
func (u *URL) HostPort() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.EffectivePort()))
}

// String returns the URL in its textual form.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteByte(':')
	if u.Opaque != "" {
		b.WriteString(u.Opaque)
	} else {
		if u.Host != "" || u.Scheme == SchemeFile {
			b.WriteString("//")
			b.WriteString(u.authority())
		}
		b.WriteString(u.Path)
	}
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Request returns the URL as sent on the wire: like String but without
// the fragment, which is never transmitted.
func (u *URL) Request() string {
	c := *u
	c.Fragment = ""
	return c.String()
}

func (u *URL) authority() string {
	host := u.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if u.Port != 0 {
		host += ":" + strconv.Itoa(u.Port)
	}
	return host
}

// Equal reports whether u and other have the same normalized form.
func (u *URL) Equal(other *URL) bool {
	if u == nil || other == nil {
		return u == other
	}
	return Normalize(u).String() == Normalize(other).String()
}

// Key returns the cache and equality key of u, its normalized form
// without fragment.
func (u *URL) Key() string {
	return Normalize(u).Request()
}

// UnescapedPath returns the decoded path, or the escaped one when it
// contains an invalid escape sequence.
func (u *URL) UnescapedPath() string {
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		return u.Path
	}
	return p
}

// Query returns the decoded query string.
func (u *URL) Query() string {
	q, err := url.PathUnescape(u.RawQuery)
	if err != nil {
		return u.RawQuery
	}
	return q
}

// WithQuery returns a copy of u whose query is the percent-encoded input
// and whose fragment is dropped. It is used to answer input requests.
func (u *URL) WithQuery(input string) *URL {
	c := *u
	c.RawQuery = url.PathEscape(input)
	c.Fragment = ""
	return &c
}

// WithoutFragment returns a copy of u without fragment.
func (u *URL) WithoutFragment() *URL {
	c := *u
	c.Fragment = ""
	return &c
}

// Parent returns the URL of the directory containing u. The parent of a
// directory URL ("/a/b/") is its enclosing directory ("/a/"); the root is
// its own parent.
func (u *URL) Parent() *URL {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	if c.Opaque != "" {
		return &c
	}
	p := strings.TrimSuffix(c.Path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		c.Path = p[:i+1]
	} else {
		c.Path = "/"
	}
	return &c
}

// Root returns the URL of the root path of u's host.
func (u *URL) Root() *URL {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	if c.Opaque == "" {
		c.Path = "/"
	}
	return &c
}

// std converts u to a net/url URL.
func (u *URL) std() (*url.URL, error) {
	return url.Parse(u.String())
}

// fromStd converts a net/url URL, keeping escaped forms.
func fromStd(std *url.URL) (*URL, error) {
	u := &URL{
		Scheme:   std.Scheme,
		Host:     std.Hostname(),
		Opaque:   std.Opaque,
		RawQuery: std.RawQuery,
		Fragment: std.EscapedFragment(),
	}
	if u.Opaque == "" {
		u.Path = std.EscapedPath()
	}
	if p := std.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		u.Port = port
	}
	return u, nil
}
