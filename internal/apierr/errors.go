// Package apierr provides shared error sentinels and retry infrastructure
// for HTTP-based API clients. All provider-specific error types are
// classified into these sentinels at the adapter boundary.
//
// Providers map HTTP status codes to these errors using fmt.Errorf("%s: %w", msg, sentinel).
// Callers check with errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import "errors"

// Sentinel errors for API interaction failures.
var (
	// ErrRateLimit indicates the API rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates API authentication failed (invalid key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrFileNotFound indicates the local file submitted to the API could not be opened.
	ErrFileNotFound = errors.New("file not found")

	// ErrTransport indicates a transport-level failure (connection reset, DNS, TLS)
	// distinct from a timeout.
	ErrTransport = errors.New("transport error")

	// ErrServer indicates a 5xx response from the server (retryable).
	ErrServer = errors.New("server error")

	// ErrCancelled indicates the caller's context was canceled mid-request.
	ErrCancelled = errors.New("request cancelled")
)

// StatusError carries the HTTP status code alongside a classified sentinel,
// so callers that need the exact code (logging, CLI exit mapping) can recover
// it with errors.As while still matching on the sentinel with errors.Is.
type StatusError struct {
	Status int
	Body   string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return e.Err.Error() + ": " + e.Body
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }
