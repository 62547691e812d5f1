// Package file serves file:// URLs from the local file system.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// Handler reads local files and directories.
type Handler struct {
	maxBodySize int64
	logger      *slog.Logger
}

var _ protocol.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodySize sets the file size ceiling in bytes.
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

// New creates a file handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		maxBodySize: protocol.DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scheme returns "file".
func (h *Handler) Scheme() string {
	return uri.SchemeFile
}

// DefaultPort returns 0; files have no port.
func (h *Handler) DefaultPort() int {
	return 0
}

// Fetch reads the file named by the path of u. A missing file is a 51
// response and a directory is rendered as a Gemtext listing.
func (h *Handler) Fetch(ctx context.Context, u *uri.URL) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := u.UnescapedPath()
	if name == "" {
		name = "/"
	}
	h.logger.Debug("file request", "path", name)

	info, err := os.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return protocol.NewResponse(u, protocol.CodeNotFound, "file not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	if info.IsDir() {
		listing, err := directoryListing(name)
		if err != nil {
			return nil, err
		}
		return protocol.NewResponse(u, protocol.CodeSuccess, protocol.DefaultMIME, []byte(listing))
	}

	f, err := os.Open(name) //nolint:gosec // the user asked for this file
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	body, err := protocol.ReadLimited(f, h.maxBodySize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return protocol.NewResponse(u, protocol.CodeSuccess, MIMEType(name), body)
}

// MIMEType returns the media type of a file from its extension. Gemtext
// files are recognized by .gmi and .gemini; unknown extensions are text.
func MIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".gmi", ".gemini":
		return protocol.DefaultMIME
	case "":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "text/plain; charset=utf-8"
}

// directoryListing renders dir as Gemtext with a link per entry.
// Directories are listed with a trailing slash.
func directoryListing(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", dir)
	if dir != "/" {
		fmt.Fprintf(&sb, "=> %s ..\n", fileURL(path.Dir(strings.TrimSuffix(dir, "/")), true))
	}
	for _, entry := range entries {
		label := entry.Name()
		if entry.IsDir() {
			label += "/"
		}
		fmt.Fprintf(&sb, "=> %s %s\n", fileURL(path.Join(dir, entry.Name()), entry.IsDir()), label)
	}
	return sb.String(), nil
}

func fileURL(p string, dir bool) string {
	if dir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return "file://" + (&url.URL{Path: p}).EscapedPath()
}
