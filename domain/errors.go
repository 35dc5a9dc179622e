// Package domain holds the worker pool's data model: the error taxonomy
// and the option defaults/validation that the scheduler is configured
// with. It owns no behavior of its own beyond normalization.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pool-level failure so callers can branch on it with
// errors.Is instead of string matching.
type Kind int

const (
	// KindUnknown is the zero value; never returned by the pool itself.
	KindUnknown Kind = iota

	// KindFilenameNotProvided: submission lacks a module name and none was defaulted.
	KindFilenameNotProvided
	// KindTaskQueueAtLimit: queue bounded and full.
	KindTaskQueueAtLimit
	// KindNoTaskQueueAvailable: max_queue == 0 and no worker available.
	KindNoTaskQueueAvailable
	// KindThreadTermination: owning worker was torn down.
	KindThreadTermination
	// KindAborted: the caller signaled cancellation.
	KindAborted
	// KindInvalidTransfer: envelope could not be serialized / transfer list invalid.
	KindInvalidTransfer
	// KindTaskError: the worker task itself raised an error.
	KindTaskError
	// KindInvalidOption: construction-time option validation failed.
	KindInvalidOption
)

func (k Kind) String() string {
	switch k {
	case KindFilenameNotProvided:
		return "filename_not_provided"
	case KindTaskQueueAtLimit:
		return "task_queue_at_limit"
	case KindNoTaskQueueAvailable:
		return "no_task_queue_available"
	case KindThreadTermination:
		return "thread_termination"
	case KindAborted:
		return "aborted"
	case KindInvalidTransfer:
		return "invalid_transfer"
	case KindTaskError:
		return "task_error"
	case KindInvalidOption:
		return "invalid_option"
	default:
		return "unknown"
	}
}

// PoolError is the concrete error type surfaced to submitters. It carries
// the taxonomy Kind plus, for KindTaskError, the underlying cause raised
// by the user's module.
type PoolError struct {
	Kind  Kind
	Cause error
}

func (e *PoolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workerpool: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("workerpool: %s", e.Kind)
}

func (e *PoolError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrAborted) match any *PoolError with that Kind,
// regardless of the wrapped cause.
func (e *PoolError) Is(target error) bool {
	other, ok := target.(*PoolError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// NewError builds a *PoolError of the given kind, optionally wrapping cause.
func NewError(kind Kind, cause error) *PoolError {
	return &PoolError{Kind: kind, Cause: cause}
}

// Sentinel errors for errors.Is comparisons against a bare Kind without a cause.
var (
	ErrFilenameNotProvided  = &PoolError{Kind: KindFilenameNotProvided}
	ErrTaskQueueAtLimit     = &PoolError{Kind: KindTaskQueueAtLimit}
	ErrNoTaskQueueAvailable = &PoolError{Kind: KindNoTaskQueueAvailable}
	ErrThreadTermination    = &PoolError{Kind: KindThreadTermination}
	ErrAborted              = &PoolError{Kind: KindAborted}
	ErrInvalidTransfer      = &PoolError{Kind: KindInvalidTransfer}
	ErrInvalidOption        = &PoolError{Kind: KindInvalidOption}
)

// KindOf unwraps err looking for a *PoolError and returns its Kind.
// Returns KindUnknown if err is not (and does not wrap) a *PoolError.
func KindOf(err error) Kind {
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
