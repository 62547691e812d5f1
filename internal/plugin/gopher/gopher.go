// Package gopher serves gopher:// URLs (RFC 1436, RFC 4266).
//
// Directories and search results are converted to Gemtext so that the
// rest of the client handles them like any Gemini page.
package gopher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// Item types used in URL paths and directory listings.
const (
	TypeFile      = '0'
	TypeDirectory = '1'
	TypeCCSO      = '2'
	TypeError     = '3'
	TypeBinHex    = '4'
	TypeDOS       = '5'
	TypeUUEncoded = '6'
	TypeSearch    = '7'
	TypeTelnet    = '8'
	TypeBinary    = '9'
	TypeRedundant = '+'
	TypeTN3270    = 'T'
	TypeGIF       = 'g'
	TypeImage     = 'I'
	TypeInfo      = 'i'
	TypeDocument  = 'd'
	TypeHTML      = 'h'
	TypeSound     = 's'
)

// unsupported lists the item types that need another program.
var unsupported = map[byte]string{
	TypeCCSO:      "CCSO name server",
	TypeError:     "error",
	TypeTelnet:    "telnet session",
	TypeRedundant: "redundant server",
	TypeTN3270:    "tn3270 session",
}

// mimeTypes maps item types to the media type of their content. Types not
// listed are treated as text.
var mimeTypes = map[byte]string{
	TypeDirectory: "text/gemini; charset=utf-8",
	TypeSearch:    "text/gemini; charset=utf-8",
	TypeHTML:      "text/html",
	TypeGIF:       "image/gif",
	TypeImage:     "application/octet-stream",
	TypeBinary:    "application/octet-stream",
	TypeDOS:       "application/octet-stream",
	TypeSound:     "application/octet-stream",
	TypeDocument:  "application/octet-stream",
}

// Handler fetches gopher:// URLs over plain TCP.
type Handler struct {
	dialer      protocol.ContextDialer
	readTimeout time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

var _ protocol.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithReadTimeout sets the idle timeout applied to every read.
func WithReadTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		h.readTimeout = timeout
	}
}

// WithMaxBodySize sets the response size ceiling in bytes.
func WithMaxBodySize(size int64) Option {
	return func(h *Handler) {
		h.maxBodySize = size
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// New creates a Gopher handler that connects through dialer.
func New(dialer protocol.ContextDialer, opts ...Option) *Handler {
	h := &Handler{
		dialer:      dialer,
		readTimeout: protocol.DefaultReadTimeout,
		maxBodySize: protocol.DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scheme returns "gopher".
func (h *Handler) Scheme() string {
	return uri.SchemeGopher
}

// DefaultPort returns 70.
func (h *Handler) DefaultPort() int {
	return uri.GopherDefaultPort
}

// Fetch requests the selector named by u. The item type in the path
// decides how the reply is presented; a URL without one is a directory.
// Search items without a query answer with an input request, and items
// that need another program answer with a permanent failure.
func (h *Handler) Fetch(ctx context.Context, u *uri.URL) (*protocol.Response, error) {
	itemType, selector := SplitPath(u.UnescapedPath())

	if name, ok := unsupported[itemType]; ok {
		return protocol.NewResponse(u, protocol.CodeBadRequest,
			fmt.Sprintf("gopher item type %q (%s) is not supported", itemType, name), nil)
	}
	if itemType == TypeSearch {
		if i := strings.IndexByte(selector, '\t'); i >= 0 {
			selector = selector[:i]
		}
		query := u.Query()
		if query == "" {
			return protocol.NewResponse(u, protocol.CodeInput, "Search", nil)
		}
		selector += "\t" + query
	}
	if strings.ContainsAny(selector, "\r\n") {
		return nil, protocol.NewProtocolError("gopher selector contains a line break")
	}

	h.logger.Debug("gopher request", "url", u.WithQuery("").String(), "query", u.RawQuery)
	body, err := protocol.Exchange(ctx, h.dialer, u.HostPort(), selector+"\r\n", h.readTimeout, h.maxBodySize)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("gopher response", "url", u.WithQuery("").String(), "type", string(itemType), "bytes", len(body))

	mimeType, ok := mimeTypes[itemType]
	if !ok {
		mimeType = "text/plain; charset=utf-8"
	}
	if itemType == TypeDirectory || itemType == TypeSearch {
		body = []byte(DirectoryToGemtext(string(body)))
	}
	return protocol.NewResponse(u, protocol.CodeSuccess, mimeType, body)
}

// SplitPath splits an unescaped URL path into the item type and the
// selector. An empty path or "/" is the root directory.
func SplitPath(path string) (itemType byte, selector string) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return TypeDirectory, ""
	}
	return path[0], path[1:]
}

// DirectoryToGemtext converts a gopher menu to Gemtext. Every item becomes
// a link line, info items become text, and "h" items whose selector starts
// with "URL:" link to the web page directly.
func DirectoryToGemtext(menu string) string {
	var sb strings.Builder
	for _, line := range strings.Split(menu, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "." {
			break
		}
		if line == "" {
			continue
		}

		fields := strings.Split(line[1:], "\t")
		if len(fields) < 4 {
			sb.WriteString(textLine(line))
			continue
		}
		itemType, label := line[0], fields[0]
		switch itemType {
		case TypeInfo, TypeError:
			sb.WriteString(textLine(label))
			continue
		}

		target := ItemURL(itemType, fields[1], fields[2], fields[3])
		if name := itemName(itemType); name != "" {
			label += " (" + name + ")"
		}
		fmt.Fprintf(&sb, "=> %s %s\n", target, label)
	}
	return sb.String()
}

// ItemURL returns the URL of a menu item.
func ItemURL(itemType byte, selector, host, port string) string {
	if itemType == TypeHTML && len(selector) > 4 && strings.EqualFold(selector[:4], "URL:") {
		return selector[4:]
	}
	authority := host
	if port != "" && port != "70" {
		authority = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		authority = "[" + host + "]"
	}
	path := (&url.URL{Path: "/" + string(itemType) + selector}).EscapedPath()
	return "gopher://" + authority + path
}

func itemName(itemType byte) string {
	switch itemType {
	case TypeDirectory, TypeFile:
		return ""
	case TypeSearch:
		return "search"
	case TypeHTML:
		return "web"
	case TypeGIF, TypeImage:
		return "image"
	case TypeSound:
		return "sound"
	case TypeDocument:
		return "document"
	case TypeBinary, TypeDOS, TypeBinHex, TypeUUEncoded:
		return "binary"
	default:
		if name, ok := unsupported[itemType]; ok {
			return name
		}
		return string(itemType)
	}
}

// textLine returns s as a Gemtext text line. Text that Gemtext would read
// as markup is indented by one space.
func textLine(s string) string {
	for _, prefix := range []string{"=>", "#", "* ", ">", "```"} {
		if strings.HasPrefix(s, prefix) {
			return " " + s + "\n"
		}
	}
	return s + "\n"
}
