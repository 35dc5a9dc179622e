package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling module panics
// =============================================================================

// PanicHandler is called when a module invocation panics inside a
// worker's run loop. Implementations should be thread-safe: every
// WorkerHandle calls it from its own goroutine.
type PanicHandler interface {
	// HandlePanic is called when a module panics.
	//
	// Parameters:
	// - ctx: the worker's run-loop context
	// - workerID: the worker on which the panic occurred
	// - panicInfo: the panic value recovered from the module
	// - stackTrace: the stack trace at the time of panic
	HandlePanic(ctx context.Context, workerID WorkerID, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at Error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, workerID WorkerID, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	logger.Error("module panicked",
		F("worker", workerID.String()),
		F("panic", fmt.Sprintf("%v", panicInfo)),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface the scheduler reports pool-level
// observability through. Implementations can send metrics to monitoring
// systems (Prometheus, StatsD, etc.); the default NilMetrics discards
// everything. All methods must be non-blocking and fast.
type Metrics interface {
	// RecordWaitTime records how long a submission waited between its
	// creation and dispatch (near zero for submissions dispatched
	// immediately).
	RecordWaitTime(d time.Duration)

	// RecordRunTime records how long a dispatched task took to execute.
	RecordRunTime(d time.Duration)

	// IncCompleted increments the completed-task counter.
	IncCompleted()

	// SetQueueDepth records the current (clamped) queue depth.
	SetQueueDepth(depth int)

	// SetWorkerCounts records the current pending/ready worker split.
	SetWorkerCounts(pending, ready int)

	// RecordWorkerError records a worker error that was not attributable
	// to any in-flight descriptor (spec.md §4.5's "surface on the pool's
	// event collaborator" path).
	RecordWorkerError()
}

// NilMetrics discards everything. It is the default when no Metrics
// implementation is supplied.
type NilMetrics struct{}

func (m *NilMetrics) RecordWaitTime(d time.Duration)     {}
func (m *NilMetrics) RecordRunTime(d time.Duration)      {}
func (m *NilMetrics) IncCompleted()                      {}
func (m *NilMetrics) SetQueueDepth(depth int)            {}
func (m *NilMetrics) SetWorkerCounts(pending, ready int) {}
func (m *NilMetrics) RecordWorkerError()                 {}
