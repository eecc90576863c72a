package chat

import "errors"

// OpKind classifies operational errors surfaced to callers.
// Anything not covered here is an internal fault: logged with full detail
// server-side and surfaced as a generic failure.
type OpKind uint8

const (
	// KindValidation marks malformed or out-of-range input. Recoverable by the
	// caller correcting the input.
	KindValidation OpKind = iota + 1
	// KindNotFound marks a missing conversation or message. Terminal for the request.
	KindNotFound
	// KindForbidden marks an authorization failure. Never retried automatically.
	KindForbidden
	// KindInvalidOperation marks a semantically illegal transition, e.g.
	// removing the owner or messaging yourself.
	KindInvalidOperation
)

// OpError is an operational error with a caller-safe message.
type OpError struct {
	Kind    OpKind
	Message string
}

func (e *OpError) Error() string { return e.Message }

// ValidationError constructs a KindValidation error.
func ValidationError(msg string) error { return &OpError{Kind: KindValidation, Message: msg} }

// NotFoundError constructs a KindNotFound error.
func NotFoundError(msg string) error { return &OpError{Kind: KindNotFound, Message: msg} }

// ForbiddenError constructs a KindForbidden error.
func ForbiddenError(msg string) error { return &OpError{Kind: KindForbidden, Message: msg} }

// InvalidOperationError constructs a KindInvalidOperation error.
func InvalidOperationError(msg string) error {
	return &OpError{Kind: KindInvalidOperation, Message: msg}
}

// KindOf extracts the operational kind from err.
// ok is false for internal faults.
func KindOf(err error) (OpKind, bool) {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an operational error of the given kind.
func IsKind(err error, kind OpKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
