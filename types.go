package workerpool

import (
	"context"

	"github.com/nodeworker/workerpool/core"
	"github.com/nodeworker/workerpool/domain"
)

// Options configures a Pool. See domain.Options for field documentation;
// re-exported here so callers never need to import the domain package
// directly.
type Options = domain.Options

// ResourceLimits is passed through verbatim to worker construction.
type ResourceLimits = domain.ResourceLimits

// AutoQueue is the sentinel accepted as Options.MaxQueue to request
// max_threads^2.
const AutoQueue = domain.AutoQueue

// Sentinel errors, re-exported for errors.Is comparisons against
// *PoolError values returned by Submission.Wait.
var (
	ErrFilenameNotProvided  = domain.ErrFilenameNotProvided
	ErrTaskQueueAtLimit     = domain.ErrTaskQueueAtLimit
	ErrNoTaskQueueAvailable = domain.ErrNoTaskQueueAvailable
	ErrThreadTermination    = domain.ErrThreadTermination
	ErrAborted              = domain.ErrAborted
	ErrInvalidTransfer      = domain.ErrInvalidTransfer
	ErrInvalidOption        = domain.ErrInvalidOption
)

// AbortSignal is a single-shot observable a caller can fire to cancel a
// submission before or during execution.
type AbortSignal = core.AbortSignal

// NewAbortSignal creates an unfired AbortSignal.
func NewAbortSignal() *AbortSignal { return core.NewAbortSignal() }

// Movable wraps a value for zero-copy transfer across the dispatch path.
type Movable = core.Movable

// Transferable is anything whose backing storage can be handed off
// rather than copied.
type Transferable = core.Transferable

// Move wraps v for zero-copy transfer. Panics synchronously if v is nil.
func Move(v Transferable) *Movable { return core.Move(v) }

// TransferListFromContext returns the transfer list a dispatching worker
// attached to ctx, for use inside a registered module to recover the
// moved handles it was dispatched with.
func TransferListFromContext(ctx context.Context) []*Movable { return core.TransferListFromContext(ctx) }

// submitConfig collects the shift-style overloads of spec.md §6's
// submit(payload, transfer_list?, module_name?, abort?) into Go
// functional options — Go has no optional/overloaded parameters, so the
// call-site shape becomes Submit(payload, WithModuleName("x"), ...)
// instead of positional-argument sniffing.
type submitConfig struct {
	transferList []*core.Movable
	moduleName   string
	abort        *core.AbortSignal
}

// SubmitOption configures one Submit call.
type SubmitOption func(*submitConfig)

// WithModuleName selects the module a submission targets, overriding the
// pool's default module name.
func WithModuleName(name string) SubmitOption {
	return func(c *submitConfig) { c.moduleName = name }
}

// WithTransferList attaches zero-copy handles to a submission.
func WithTransferList(list ...*core.Movable) SubmitOption {
	return func(c *submitConfig) { c.transferList = list }
}

// WithAbort attaches a cancellation observable to a submission.
func WithAbort(abort *core.AbortSignal) SubmitOption {
	return func(c *submitConfig) { c.abort = abort }
}

// Submission is the pending completion handle returned by Pool.Submit —
// the concrete shape of spec.md §6's "returns a pending completion."
type Submission struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the submission resolves or ctx is done, whichever
// comes first.
func (s *Submission) Wait(ctx context.Context) (any, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
