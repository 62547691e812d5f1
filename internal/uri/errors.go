package uri

import "errors"

// ErrMalformedURL is returned when a string cannot be parsed as an absolute
// URL, or when a reference cannot be resolved against its base.
var ErrMalformedURL = errors.New("malformed URL")
