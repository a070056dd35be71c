package ledger

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the engine reports.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindDuplicateReference  Kind = "duplicate_reference"
	KindConflict            Kind = "conflict"
	KindForeignKeyViolation Kind = "foreign_key_violation"
	KindLockTimeout         Kind = "lock_timeout"
	KindDeadlock            Kind = "deadlock"
	KindConnection          Kind = "connection_error"
	KindGeneric             Kind = "generic"
)

var (
	// ErrValidation marks malformed or missing input detected before storage is touched.
	ErrValidation = &Error{Kind: KindValidation, Message: "invalid input"}
	// ErrNotFound indicates the requested wallet or record does not exist.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrInsufficientFunds occurs when a withdrawal or transfer exceeds the
	// available balance of the source wallet.
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	// ErrDuplicateReference indicates the caller supplied reference was
	// already recorded, so the movement has been applied before.
	ErrDuplicateReference = &Error{Kind: KindDuplicateReference, Message: "reference already exists"}
	// ErrConflict is returned when an owner already holds a wallet.
	ErrConflict = &Error{Kind: KindConflict, Message: "owner already has a wallet"}
	ErrForeignKeyViolation = &Error{Kind: KindForeignKeyViolation, Message: "referenced record does not exist"}
	ErrLockTimeout         = &Error{Kind: KindLockTimeout, Message: "lock wait timeout exceeded"}
	ErrDeadlock            = &Error{Kind: KindDeadlock, Message: "deadlock detected"}
	ErrConnection          = &Error{Kind: KindConnection, Message: "database connection failed"}
	ErrGeneric             = &Error{Kind: KindGeneric, Message: "database operation failed"}
)

// Error is the classified failure returned by every engine operation.
// Compare with errors.Is against the package sentinels, which match on Kind.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func validationError(op, message string) *Error {
	return newError(KindValidation, op, message, nil)
}

// NewValidationError reports malformed input found by a caller before it
// reaches the engine.
func NewValidationError(op, message string) error {
	return validationError(op, message)
}

func notFound(what, id string) *Error {
	return newError(KindNotFound, "", fmt.Sprintf("%s %s not found", what, id), nil)
}

// KindOf returns the classified kind carried by err, or KindGeneric when err
// did not come out of the ledger.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindGeneric
}

// IsRetryable reports whether the failure came from lock contention. Callers
// decide whether to retry; the engine never does.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindLockTimeout, KindDeadlock:
		return true
	default:
		return false
	}
}
