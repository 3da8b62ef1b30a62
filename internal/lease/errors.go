package lease

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds. Match with errors.Is(err, lease.ErrConflict).
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrTransientStorage = errors.New("transient storage error")
	ErrAuditWrite       = errors.New("audit write failure")
)

// Error is the only error type returned by the Engine. Kind is one of the
// sentinel errors above; Err carries the underlying cause, if any.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// KindOf returns the sentinel kind of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return nil
}

func validationError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notFoundError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func conflictError(op, msg string, cause error) *Error {
	return &Error{Kind: ErrConflict, Op: op, Msg: msg, Err: cause}
}

func auditError(op string, cause error) *Error {
	return &Error{Kind: ErrAuditWrite, Op: op, Msg: "history write failed", Err: cause}
}

// storageError classifies anything that is not already an *Error.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTransientStorage, Op: op, Msg: "operation timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrTransientStorage, Op: op, Msg: "operation cancelled", Err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflictError(op, "unique constraint violated", err)
	}
	return &Error{Kind: ErrTransientStorage, Op: op, Err: err}
}
