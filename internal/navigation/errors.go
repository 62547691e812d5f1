package navigation

import (
	"errors"
	"fmt"

	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

var (
	// ErrInvalidLinkID is returned when a link number does not exist on
	// the current page.
	ErrInvalidLinkID = errors.New("invalid link number")

	// ErrNoHistory is returned when there is no page to go back or forward
	// to, or no current page at all.
	ErrNoHistory = errors.New("no history")
)

// InputRequiredError is returned when the server asks for a line of
// input. Answer it with Engine.SubmitInput.
type InputRequiredError struct {
	// URL is the URL that asked for input.
	URL *uri.URL

	// Prompt is the text to show the user.
	Prompt string

	// Sensitive is set for status 11: the input must not be echoed.
	Sensitive bool
}

// Error implements the error interface.
func (e *InputRequiredError) Error() string {
	if e.Prompt == "" {
		return fmt.Sprintf("input required by %s", e.URL)
	}
	return fmt.Sprintf("input required by %s: %s", e.URL, e.Prompt)
}

// StatusError reports a 4x, 5x or 6x response.
type StatusError struct {
	URL    *uri.URL
	Status protocol.Status
	Code   int
	Meta   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Meta
	if msg == "" {
		msg = e.Status.String()
	}
	return fmt.Sprintf("%s: %02d %s", e.URL, e.Code, msg)
}

// Unwrap returns ErrClientCertificateRequired for 6x responses.
func (e *StatusError) Unwrap() error {
	if e.Status == protocol.StatusClientCertificateRequired {
		return protocol.ErrClientCertificateRequired
	}
	return nil
}

// Temporary reports whether the failure may go away if retried later.
func (e *StatusError) Temporary() bool {
	return e.Status == protocol.StatusTemporaryFailure
}

// RedirectError is returned for a redirect when automatic following is
// disabled. Navigate to To to follow it.
type RedirectError struct {
	From      *uri.URL
	To        *uri.URL
	Code      int
	Permanent bool
}

// Error implements the error interface.
func (e *RedirectError) Error() string {
	kind := "temporary"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s redirect from %s to %s", kind, e.From, e.To)
}
