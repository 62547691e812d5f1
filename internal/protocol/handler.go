package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao1215/bebop/internal/uri"
)

// Handler fetches resources for one URL scheme. Built-in Gemini support and
// plugins such as Gopher or Finger all implement it and are registered in a
// Registry.
type Handler interface {
	// Scheme returns the lower-case scheme this handler serves.
	Scheme() string

	// DefaultPort returns the port used when the URL carries none.
	DefaultPort() int

	// Fetch performs one request for u on a fresh connection. It never
	// follows redirects and never retries. Non-success responses are
	// returned as a Response with a nil error; the error is reserved for
	// transport and protocol failures.
	Fetch(ctx context.Context, u *uri.URL) (*Response, error)
}

// Status is the class of a response, given by the first digit of its code.
type Status int

const (
	// StatusInput (1x) asks the user for a line of input.
	StatusInput Status = iota + 1

	// StatusSuccess (2x) carries a body described by the MIME type in meta.
	StatusSuccess

	// StatusRedirect (3x) points to another URL in meta.
	StatusRedirect

	// StatusTemporaryFailure (4x) may succeed if retried later.
	StatusTemporaryFailure

	// StatusPermanentFailure (5x) will not succeed if retried.
	StatusPermanentFailure

	// StatusClientCertificateRequired (6x) requires a client identity.
	StatusClientCertificateRequired
)

// Well-known two-digit codes.
const (
	CodeInput               = 10
	CodeSensitiveInput      = 11
	CodeSuccess             = 20
	CodeRedirect            = 30
	CodePermanentRedirect   = 31
	CodeTemporaryFailure    = 40
	CodePermanentFailure    = 50
	CodeNotFound            = 51
	CodeBadRequest          = 59
	CodeCertificateRequired = 60
)

// String returns the status class name.
func (s Status) String() string {
	switch s {
	case StatusInput:
		return "input"
	case StatusSuccess:
		return "success"
	case StatusRedirect:
		return "redirect"
	case StatusTemporaryFailure:
		return "temporary failure"
	case StatusPermanentFailure:
		return "permanent failure"
	case StatusClientCertificateRequired:
		return "client certificate required"
	default:
		return "unknown"
	}
}

// ClassOf returns the status class of a two-digit code.
func ClassOf(code int) (Status, bool) {
	if code < 10 || code > 69 {
		return 0, false
	}
	return Status(code / 10), true
}

// DefaultMIME is assumed when a success response has an empty meta.
const DefaultMIME = "text/gemini; charset=utf-8"

// Response is the outcome of one exchange.
type Response struct {
	// URL is the URL that was requested.
	URL *uri.URL

	// Status is the class of Code.
	Status Status

	// Code is the two-digit status code.
	Code int

	// Meta is the header text after the code: a MIME type, a prompt, a
	// redirect target or an error message.
	Meta string

	// Body is set only for StatusSuccess.
	Body []byte
}

// NewResponse builds a Response, checking that code is a valid status code.
// The body is dropped unless the code is a success.
func NewResponse(u *uri.URL, code int, meta string, body []byte) (*Response, error) {
	status, ok := ClassOf(code)
	if !ok {
		return nil, NewProtocolError("invalid status code %d", code)
	}
	r := &Response{URL: u, Status: status, Code: code, Meta: meta}
	if status == StatusSuccess {
		r.Body = body
	}
	return r, nil
}

// MIME returns the media type of a success response, defaulting to
// text/gemini when meta is empty.
func (r *Response) MIME() string {
	if r.Status != StatusSuccess {
		return ""
	}
	if strings.TrimSpace(r.Meta) == "" {
		return DefaultMIME
	}
	return r.Meta
}

// Sensitive reports whether an input response asks for sensitive input
// that must not be echoed or logged.
func (r *Response) Sensitive() bool {
	return r.Code == CodeSensitiveInput
}

// Size returns the body length in bytes.
func (r *Response) Size() int {
	return len(r.Body)
}

// String returns the response header line without CRLF.
func (r *Response) String() string {
	if r.Meta == "" {
		return fmt.Sprintf("%02d", r.Code)
	}
	return fmt.Sprintf("%02d %s", r.Code, r.Meta)
}
