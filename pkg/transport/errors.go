package transport

import (
	"errors"
	"fmt"
)

// Error classes shared by every outbound call. Wrap the underlying cause
// with errors.Join or %w so callers can classify with errors.Is.
var (
	ErrConfiguration = errors.New("transport: invalid configuration")
	ErrTransport     = errors.New("transport: network failure")
	ErrProtocol      = errors.New("transport: unexpected response status")
	ErrSerialization = errors.New("transport: malformed payload")
	ErrOffline       = errors.New("transport: client is offline")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

// Error returns the status code and the response body, if any.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response status %d", e.Code)
	}
	return fmt.Sprintf("unexpected response status %d: %s", e.Code, e.Body)
}

// Unwrap makes every StatusError match ErrProtocol.
func (e *StatusError) Unwrap() error { return ErrProtocol }

// IsHTTPErrorRecoverable reports whether a request that failed with status
// may succeed when retried. Client errors are permanent except 400, 408
// and 429.
func IsHTTPErrorRecoverable(status int) bool {
	if status >= 400 && status < 500 {
		switch status {
		case 400, 408, 429:
			return true
		default:
			return false
		}
	}
	return true
}

// IsFatal reports whether err must stop retries for good.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !IsHTTPErrorRecoverable(se.Code)
	}
	return false
}

// IsRetriable reports whether err is a failure worth retrying. Network,
// serialization and unknown errors are retriable.
func IsRetriable(err error) bool {
	return err != nil && !IsFatal(err)
}
