package recordstore

import "fmt"

// ErrorKind classifies a record-store failure so callers (C6, C7, C9) can
// decide whether to retry, surface to an operator, or fail the run
// (SPEC_FULL C1).
type ErrorKind int

const (
	// KindRetryable covers transport errors and 5xx/429 responses — the
	// caller may retry the same operation.
	KindRetryable ErrorKind = iota
	// KindPermanentValidation covers a 4xx rejection of the payload itself
	// (bad field, missing required value) — retrying unchanged will fail
	// again.
	KindPermanentValidation
	// KindAuth covers 401/403 — the configured API key is invalid.
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindPermanentValidation:
		return "permanent_validation"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error wraps a record-store failure with its classification and the
// operation that produced it.
type Error struct {
	Kind      ErrorKind
	Operation string
	Status    int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recordstore: %s (%s, HTTP %d): %v", e.Operation, e.Kind, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err (possibly wrapped) is a retryable
// recordstore.Error.
func IsRetryable(err error) bool {
	var rsErr *Error
	if !asError(err, &rsErr) {
		return false
	}
	return rsErr.Kind == KindRetryable
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func classify(operation string, status int, err error) *Error {
	kind := KindRetryable
	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 429:
		kind = KindRetryable
	case status >= 400 && status < 500:
		kind = KindPermanentValidation
	}
	return &Error{Kind: kind, Operation: operation, Status: status, Err: err}
}
