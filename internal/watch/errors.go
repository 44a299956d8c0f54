package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks missing or invalid configuration. Fatal before any I/O.
	ErrConfig = errors.New("invalid configuration")
	// ErrTooManyRedirects is returned when the redirect budget runs out.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrFetchFailed marks a fetch that completed with a non-200 status or an empty body.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrMalformedState marks a persisted record that could not be decoded.
	ErrMalformedState = errors.New("malformed state record")
	// ErrInsecureURL is returned for any URL that is not https.
	ErrInsecureURL = errors.New("only https URLs are supported")
)

// TransportError wraps a network-level failure (DNS, TLS, reset, timeout).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err carries a TransportError for the given op.
// An empty op matches any operation.
func IsTransport(err error, op string) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return op == "" || te.Op == op
}
