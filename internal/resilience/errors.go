package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// RecoverableError wraps an error that is safe to skip past at the item or
// strategy boundary (upstream timeout, malformed response, 429/5xx). Anything
// not in this class is treated as a programming error and propagates.
type RecoverableError struct {
	Err        error
	StatusCode int
}

func (e *RecoverableError) Error() string {
	return e.Err.Error()
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// NewRecoverable wraps an error as recoverable with an optional HTTP status code.
func NewRecoverable(err error, statusCode int) *RecoverableError {
	return &RecoverableError{Err: err, StatusCode: statusCode}
}

// IsRecoverable returns true if the error (or any error in its chain) is a
// RecoverableError, or if it matches common transient network failure
// patterns (timeouts, connection resets, DNS failures).
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var re *RecoverableError
	if errors.As(err, &re) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients lose their type; fall back to
	// message matching for the usual transport failures.
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRecoverableHTTPStatus returns true if the status code indicates a
// transient server-side issue.
func IsRecoverableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
