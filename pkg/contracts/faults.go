package contracts

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline fault for retry and routing decisions.
type Kind string

const (
	KindTransient        Kind = "Transient"
	KindThrottled        Kind = "Throttled"
	KindInvalidInput     Kind = "InvalidInput"
	KindInvalidContent   Kind = "InvalidContent"
	KindInvalidImage     Kind = "InvalidImage"
	KindNotFound         Kind = "NotFound"
	KindSchemaViolation  Kind = "SchemaViolation"
	KindDeadlineExceeded Kind = "DeadlineExceeded"
	KindPermissionDenied Kind = "PermissionDenied"
)

// Fault wraps an error with its taxonomy kind and the stage that raised it.
type Fault struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (f *Fault) Error() string {
	if f.Stage != "" {
		return fmt.Sprintf("%s [%s]: %v", f.Stage, f.Kind, f.Err)
	}
	return fmt.Sprintf("[%s]: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault wraps err with a kind. A nil err yields a bare fault with the
// kind as its message.
func NewFault(kind Kind, err error) *Fault {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Fault{Kind: kind, Err: err}
}

// Faultf is the printf form of NewFault.
func Faultf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the taxonomy kind from an error chain. Unclassified errors
// are Transient; context deadline and cancellation map to DeadlineExceeded.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindDeadlineExceeded
	}
	return KindTransient
}

// Retryable reports whether the stage retry loops may re-attempt after err.
// Validation and content failures short-circuit immediately.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindThrottled, KindDeadlineExceeded:
		return true
	default:
		return false
	}
}
