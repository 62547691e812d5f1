package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so that callers can use
// errors.Is() on them while the messages stay readable.
var (
	// ErrInvalidTimeout is returned when the connect or read timeout is not
	// positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidCacheSize is returned when the cache entry or byte limit is
	// not positive.
	ErrInvalidCacheSize = errors.New("invalid cache size: entries and bytes must be positive")

	// ErrInvalidCacheTTL is returned when the cache TTL is negative.
	// Zero disables expiry.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrInvalidPinMaxAge is returned when the pin max age is negative.
	// Zero keeps pins until their certificate expires.
	ErrInvalidPinMaxAge = errors.New("invalid pin max age: must be non-negative")

	// ErrInvalidLinkCommit is returned for an unknown link commit policy.
	ErrInvalidLinkCommit = errors.New("invalid link commit policy: use unambiguous, max-digits or enter")

	// ErrInvalidHome is returned when the home page is not a valid URL.
	ErrInvalidHome = errors.New("invalid home page URL")

	// ErrInvalidTextWidth is returned when the text width is negative.
	ErrInvalidTextWidth = errors.New("invalid text width: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingOutputFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a time.
	ErrConflictingOutputFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")
)
