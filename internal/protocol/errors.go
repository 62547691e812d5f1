package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedScheme is returned when no handler is registered for a scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrDuplicateScheme is returned when a scheme already has a handler.
	ErrDuplicateScheme = errors.New("scheme already registered")

	// ErrRegistryFrozen is returned when registering after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrTransport is the class of connection failures: refused, reset,
	// timed out or cancelled. It is wrapped by *TransportError.
	ErrTransport = errors.New("transport error")

	// ErrProtocolViolation is the class of malformed exchanges: bad header,
	// oversized request, meta or body, too many redirects. It is wrapped by
	// *ProtocolError.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrClientCertificateRequired is returned for 6x responses.
	ErrClientCertificateRequired = errors.New("client certificate required")
)

// TransportError describes a failed network operation.
type TransportError struct {
	// Op is the failed step: "dial", "handshake", "write" or "read".
	Op string

	// Addr is the "host:port" of the remote side.
	Addr string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ProtocolError describes a response or request that breaks the protocol.
type ProtocolError struct {
	Reason string
}

// NewProtocolError returns a *ProtocolError with a formatted reason.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProtocolViolation, e.Reason)
}

// Unwrap returns ErrProtocolViolation.
func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}
