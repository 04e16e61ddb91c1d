// Package fault defines the discriminated error taxonomy surfaced by the
// tenancy core. Callers branch on the Kind, never on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is a systemic failure (storage, connectivity).
	KindInternal Kind = iota
	// KindValidation is malformed input, caught before any mutation.
	KindValidation
	// KindPermissionDenied is a false policy predicate or failed role check.
	KindPermissionDenied
	// KindNotFound covers rows that are absent or invisible under policy.
	// The two are deliberately indistinguishable to avoid leaking tenant
	// existence.
	KindNotFound
	// KindConflict is state that has already transitioned: invite used,
	// expired or revoked, item not available, duplicate slug.
	KindConflict
	// KindInvariantViolation is a cross-row invariant breach such as the
	// sole owner leaving an organization.
	KindInvariantViolation
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "internal"
	}
}

// Error is a failure with a taxonomy kind and human-readable message.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: err}
}

// Validationf creates a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// PermissionDeniedf creates a KindPermissionDenied error.
func PermissionDeniedf(format string, args ...any) *Error {
	return New(KindPermissionDenied, format, args...)
}

// NotFoundf creates a KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflictf creates a KindConflict error.
func Conflictf(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// InvariantViolationf creates a KindInvariantViolation error.
func InvariantViolationf(format string, args ...any) *Error {
	return New(KindInvariantViolation, format, args...)
}

// Internalf creates a KindInternal error wrapping a cause.
func Internalf(err error, format string, args ...any) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf returns the kind of err, or KindInternal if err carries no kind.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
