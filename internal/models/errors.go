package models

import "errors"

// Sentinel errors for the simple failure kinds. Transport and session code
// wrap these with fmt.Errorf("...: %w", err) so callers can errors.Is them.
var (
	// ErrCancelled marks an operation aborted by the user. Expected, never
	// reported as a job failure by itself.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotFound marks a job or artifact the backend does not know about.
	ErrNotFound = errors.New("not found")

	// ErrNoResult is returned by download/copy when the session has no
	// terminal result yet.
	ErrNoResult = errors.New("no result available")

	// ErrJobAlreadyRunning is returned when starting a second active job on
	// the same controller.
	ErrJobAlreadyRunning = errors.New("job already running")
)

// ValidationError carries a user-facing message from a 4xx response. The
// message is shown verbatim; the user can fix the input and retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NetworkError wraps a transport-level failure (connection refused, reset,
// bad gateway). Transient; the polling loop retries these with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError wraps a deadline expiry on a single attempt
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return e.Op + ": timed out"
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the polling loop should absorb the error and
// retry rather than surface it.
func IsTransient(err error) bool {
	var netErr *NetworkError
	var toErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &toErr)
}
