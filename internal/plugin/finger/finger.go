// Package finger serves finger:// URLs (RFC 1288).
package finger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// Handler queries finger servers over plain TCP.
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

// New creates a Finger handler that connects through dialer.
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

// Scheme returns "finger".
func (h *Handler) Scheme() string {
	return uri.SchemeFinger
}

// DefaultPort returns 79.
func (h *Handler) DefaultPort() int {
	return uri.FingerDefaultPort
}

// Fetch queries the user named by the path of u, or lists the users of
// the host when the path is empty. The reply is returned as plain text.
func (h *Handler) Fetch(ctx context.Context, u *uri.URL) (*protocol.Response, error) {
	user := strings.Trim(u.UnescapedPath(), "/")
	if strings.ContainsAny(user, "\r\n") {
		return nil, protocol.NewProtocolError("finger query contains a line break")
	}

	h.logger.Debug("finger request", "host", u.HostPort(), "user", user)
	body, err := protocol.Exchange(ctx, h.dialer, u.HostPort(), user+"\r\n", h.readTimeout, h.maxBodySize)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("finger response", "host", u.HostPort(), "bytes", len(body))
	return protocol.NewResponse(u, protocol.CodeSuccess, "text/plain; charset=utf-8", body)
}
