package retry

import (
	"errors"
	"strings"
)

// TransientError and PermanentError let callers (exportproc, artifactstore)
// tag an error with its classification without Executor needing to pattern
// match on error strings.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// DefaultClassifier recognizes explicitly tagged errors first, then falls
// back to matching common transient substrings (connection reset,
// deadlock, timeout, storage 5xx) against the error text. Anything else
// is treated as Permanent.
func DefaultClassifier(err error) Classification {
	var t *TransientError
	if errors.As(err, &t) {
		return Transient
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return Permanent
	}

	msg := strings.ToLower(err.Error())
	transientSubstrings := []string{
		"connection reset",
		"deadlock",
		"timeout",
		"timed out",
		"i/o timeout",
		"connection refused",
		"status 5",
		"throttl",
		"temporary failure",
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return Transient
		}
	}
	return Permanent
}
