package core

import "github.com/nodeworker/workerpool/domain"

// Thin constructors over domain.PoolError so the scheduler and worker
// handle never build a bare fmt.Errorf for a caller-visible condition —
// every failure a submission can see carries a domain.Kind.

func NewThreadTerminationError(cause error) error {
	return domain.NewError(domain.KindThreadTermination, cause)
}

func NewAbortedError() error {
	return domain.ErrAborted
}

func NewTaskQueueAtLimitError() error {
	return domain.ErrTaskQueueAtLimit
}

func NewNoTaskQueueAvailableError() error {
	return domain.ErrNoTaskQueueAvailable
}

func NewFilenameNotProvidedError() error {
	return domain.ErrFilenameNotProvided
}

func NewInvalidTransferError(cause error) error {
	return domain.NewError(domain.KindInvalidTransfer, cause)
}

func NewTaskError(cause error) error {
	return domain.NewError(domain.KindTaskError, cause)
}
