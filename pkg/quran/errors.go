package quran

import (
	"errors"
	"fmt"
)

// Kind classifies client failures for retry and user-messaging decisions.
type Kind string

const (
	KindNetwork    Kind = "NETWORK"
	KindAPI        Kind = "API"
	KindValidation Kind = "VALIDATION"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindForbidden  Kind = "FORBIDDEN"
	KindUnknown    Kind = "UNKNOWN"
)

// Error is the typed failure surfaced by the client.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("quran %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("quran %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func validationError(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// KindOf extracts the failure kind, defaulting to UNKNOWN.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}

// Retryable reports whether the failure is transient: only network and
// rate-limit failures are worth another attempt. Validation never retries.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimit:
		return true
	default:
		return false
	}
}
