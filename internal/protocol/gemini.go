package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nao1215/bebop/internal/tofu"
	"github.com/nao1215/bebop/internal/uri"
)

// Gemini protocol limits.
const (
	// MaxRequestLength is the maximum length of the request URL in bytes.
	MaxRequestLength = 1024

	// MaxMetaLength is the maximum length of the response meta in bytes.
	MaxMetaLength = 1024

	// DefaultReadTimeout is the idle timeout applied to every read.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxBodySize caps the size of a response body.
	DefaultMaxBodySize int64 = 16 << 20
)

// maxHeaderLength is two status digits, a space, the meta and CRLF.
const maxHeaderLength = 2 + 1 + MaxMetaLength + 2

// CertificateVerifier decides whether a server certificate is trusted.
// *tofu.Store implements it.
type CertificateVerifier interface {
	Verify(ctx context.Context, host string, port int, cert *x509.Certificate) error
}

// IdentityProvider selects the client certificate for a URL.
// *tofu.Store implements it.
type IdentityProvider interface {
	IdentityFor(u *uri.URL) (tofu.Identity, bool)
}

// GeminiHandler speaks the Gemini protocol over TLS.
//
// Server certificates are not checked against a CA pool; trust is delegated
// to the CertificateVerifier, which pins them on first use. The verifier
// runs right after the handshake and before the request is written.
type GeminiHandler struct {
	dialer      ContextDialer
	verifier    CertificateVerifier
	identities  IdentityProvider
	readTimeout time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

var _ Handler = (*GeminiHandler)(nil)

// GeminiOption configures a GeminiHandler.
type GeminiOption func(*GeminiHandler)

// WithReadTimeout sets the idle timeout applied to every read.
func WithReadTimeout(timeout time.Duration) GeminiOption {
	return func(h *GeminiHandler) {
		h.readTimeout = timeout
	}
}

// WithMaxBodySize sets the response body ceiling in bytes.
func WithMaxBodySize(size int64) GeminiOption {
	return func(h *GeminiHandler) {
		h.maxBodySize = size
	}
}

// WithIdentities sets the source of client certificates.
func WithIdentities(p IdentityProvider) GeminiOption {
	return func(h *GeminiHandler) {
		h.identities = p
	}
}

// WithGeminiLogger sets the logger.
func WithGeminiLogger(logger *slog.Logger) GeminiOption {
	return func(h *GeminiHandler) {
		h.logger = logger
	}
}

// NewGeminiHandler creates a Gemini handler that connects through dialer
// and trusts server certificates according to verifier.
func NewGeminiHandler(dialer ContextDialer, verifier CertificateVerifier, opts ...GeminiOption) *GeminiHandler {
	h := &GeminiHandler{
		dialer:      dialer,
		verifier:    verifier,
		readTimeout: DefaultReadTimeout,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scheme returns "gemini".
func (h *GeminiHandler) Scheme() string {
	return uri.SchemeGemini
}

// DefaultPort returns 1965.
func (h *GeminiHandler) DefaultPort() int {
	return uri.GeminiDefaultPort
}

// Fetch performs one Gemini request.
func (h *GeminiHandler) Fetch(ctx context.Context, u *uri.URL) (*Response, error) {
	request := u.Request()
	if len(request) > MaxRequestLength {
		return nil, NewProtocolError("request of %d bytes exceeds %d bytes", len(request), MaxRequestLength)
	}

	addr := u.HostPort()
	rawConn, err := h.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapTransportError(ctx, "dial", addr, err)
	}

	conn := tls.Client(rawConn, h.tlsConfig(ctx, u))
	defer conn.Close()

	stop := WatchContext(ctx, conn)
	defer stop()

	if h.readTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return nil, WrapTransportError(ctx, "handshake", addr, err)
		}
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		if errors.Is(err, tofu.ErrCertificatePinMismatch) {
			return nil, fmt.Errorf("handshake with %s: %w", addr, err)
		}
		return nil, WrapTransportError(ctx, "handshake", addr, err)
	}

	h.logger.Debug("gemini request", "url", u.WithQuery("").String(), "query", u.RawQuery)
	if _, err := io.WriteString(conn, request+"\r\n"); err != nil {
		return nil, WrapTransportError(ctx, "write", addr, err)
	}

	br := bufio.NewReader(NewIdleReader(conn, h.readTimeout))

	line, err := readHeaderLine(br)
	if err != nil {
		return nil, WrapTransportError(ctx, "read", addr, err)
	}
	code, meta, err := ParseHeader(line)
	if err != nil {
		return nil, err
	}

	var body []byte
	if code/10 == int(StatusSuccess) {
		body, err = ReadLimited(br, h.maxBodySize)
		if err != nil {
			return nil, WrapTransportError(ctx, "read", addr, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapTransportError(ctx, "read", addr, err)
	}

	h.logger.Debug("gemini response", "url", u.WithQuery("").String(), "code", code, "bytes", len(body))
	return NewResponse(u, code, meta, body)
}

// tlsConfig builds the per-request TLS configuration.
func (h *GeminiHandler) tlsConfig(ctx context.Context, u *uri.URL) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Chains are not validated: self-signed certificates are the norm
		// and trust is established by VerifyConnection.
		InsecureSkipVerify: true, //nolint:gosec // TOFU verification below
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return NewProtocolError("server presented no certificate")
			}
			return h.verifier.Verify(ctx, u.Host, u.EffectivePort(), cs.PeerCertificates[0])
		},
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			if h.identities == nil {
				return &tls.Certificate{}, nil
			}
			id, ok := h.identities.IdentityFor(u)
			if !ok {
				return &tls.Certificate{}, nil
			}
			cert, err := id.TLSCertificate()
			if err != nil {
				return nil, err
			}
			h.logger.Debug("presenting client identity", "name", id.Name, "host", u.Host)
			return &cert, nil
		},
	}
	if net.ParseIP(u.Host) == nil {
		cfg.ServerName = u.Host
	}
	return cfg
}

// readHeaderLine reads the response header up to and including LF.
func readHeaderLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if sb.Len() == 0 {
					return "", NewProtocolError("empty response")
				}
				return "", NewProtocolError("header not terminated by CRLF")
			}
			return "", err
		}
		sb.WriteByte(b)
		if b == '\n' {
			return sb.String(), nil
		}
		if sb.Len() >= maxHeaderLength {
			return "", NewProtocolError("header exceeds %d bytes", maxHeaderLength)
		}
	}
}

// ParseHeader parses a response header line "<2 digits><SP><meta>CRLF".
// The space and meta may be omitted, except for redirects which need a
// target.
func ParseHeader(line string) (code int, meta string, err error) {
	if !strings.HasSuffix(line, "\r\n") {
		return 0, "", NewProtocolError("header not terminated by CRLF")
	}
	line = strings.TrimSuffix(line, "\r\n")

	if len(line) < 2 || !isDigit(line[0]) || !isDigit(line[1]) {
		return 0, "", NewProtocolError("malformed status in header %q", truncate(line))
	}
	code = int(line[0]-'0')*10 + int(line[1]-'0')
	if _, ok := ClassOf(code); !ok {
		return 0, "", NewProtocolError("invalid status code %02d", code)
	}

	switch {
	case len(line) == 2:
	case line[2] == ' ':
		meta = line[3:]
	default:
		return 0, "", NewProtocolError("missing space after status in header %q", truncate(line))
	}

	if len(meta) > MaxMetaLength {
		return 0, "", NewProtocolError("meta exceeds %d bytes", MaxMetaLength)
	}
	if strings.ContainsAny(meta, "\r\n") {
		return 0, "", NewProtocolError("control characters in meta")
	}
	if code/10 == int(StatusRedirect) && strings.TrimSpace(meta) == "" {
		return 0, "", NewProtocolError("redirect without target")
	}
	return code, meta, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func truncate(s string) string {
	const limit = 32
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
