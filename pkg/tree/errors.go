package tree

import "errors"

// StoreError is the domain error returned by tree store operations.
//
// These are business errors (unknown node, sibling name collision, missing
// permission) as opposed to infrastructure errors (disk failure, context
// cancellation), which are returned as plain wrapped errors. The API layer
// is the only place that translates an ErrorCode into a transport status;
// stores and callers match on the code, never on the message.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable description
	Message string

	// Name is the node name involved, when one applies (create, rename)
	Name string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Name != "" {
		return e.Message + ": " + e.Name
	}
	return e.Message
}

// ErrorCode categorizes a StoreError.
type ErrorCode int

const (
	// ErrNotFound indicates the id does not resolve, or resolves to the
	// wrong node kind (a file id passed to a directory operation).
	ErrNotFound ErrorCode = iota

	// ErrPermissionDenied indicates the principal lacks the required access
	// on the node. Also returned for structurally forbidden mutations such
	// as deleting or renaming a root directory.
	ErrPermissionDenied

	// ErrNameInvalid indicates an empty or otherwise unusable node name.
	ErrNameInvalid

	// ErrNameConflict indicates a sibling with the same name already exists.
	// Directories and files share one namespace within a parent.
	ErrNameConflict

	// ErrFileTooLarge indicates uploaded content exceeded the configured
	// maximum size.
	ErrFileTooLarge

	// ErrContentNotReady indicates a content read on a file that is still
	// pending (metadata created, upload not yet completed).
	ErrContentNotReady

	// ErrIdExhaustion indicates the allocator could not produce a fresh id.
	// Should not occur in practice.
	ErrIdExhaustion
)

func (c ErrorCode) errString() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrNameInvalid:
		return "invalid name"
	case ErrNameConflict:
		return "name conflict"
	case ErrFileTooLarge:
		return "file too large"
	case ErrContentNotReady:
		return "content not ready"
	case ErrIdExhaustion:
		return "id exhaustion"
	default:
		return "unknown error"
	}
}

// NewError builds a StoreError for the given code with the default message.
func NewError(code ErrorCode, name string) *StoreError {
	return &StoreError{Code: code, Message: code.errString(), Name: name}
}

// CodeOf extracts the ErrorCode from an error, reporting ok=false for
// non-store errors. Wrapped store errors are unwrapped.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsCode reports whether err is a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
