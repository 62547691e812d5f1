package tofu

import (
	"errors"
	"fmt"
)

var (
	// ErrCertificatePinMismatch is returned when a server presents a
	// certificate whose fingerprint differs from the pinned one.
	ErrCertificatePinMismatch = errors.New("certificate pin mismatch")

	// ErrIdentityNotFound is returned when an identity ID is unknown.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrInvalidIdentity is returned when an identity has no host or its
	// certificate and key cannot be loaded.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrStoreClosed is returned by mutations after Close.
	ErrStoreClosed = errors.New("trust store is closed")
)

// PinMismatchError reports a certificate that does not match its pin.
// It carries both fingerprints so the user can decide whether to repin.
type PinMismatchError struct {
	Host     string
	Port     int
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *PinMismatchError) Error() string {
	return fmt.Sprintf("%s for %s:%d: pinned %s, got %s",
		ErrCertificatePinMismatch, e.Host, e.Port, e.Expected, e.Got)
}

// Unwrap returns ErrCertificatePinMismatch.
func (e *PinMismatchError) Unwrap() error {
	return ErrCertificatePinMismatch
}

// Is reports whether target is ErrCertificatePinMismatch.
func (e *PinMismatchError) Is(target error) bool {
	return target == ErrCertificatePinMismatch
}
