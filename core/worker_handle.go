package core

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerID identifies a live WorkerHandle.
type WorkerID uuid.UUID

// String renders the WorkerID for logging.
func (id WorkerID) String() string { return uuid.UUID(id).String() }

// NewWorkerID generates a fresh WorkerID.
func NewWorkerID() WorkerID { return WorkerID(uuid.New()) }

// WorkerHandle is the controller-side record for one live worker, per
// spec.md §3/§4.2. The underlying OS thread of the original design maps
// to a dedicated goroutine running a module invocation loop; the wake
// channel, task_map, idle timer and ready gate are carried verbatim.
type WorkerHandle struct {
	ID   WorkerID
	wake *WakeChannel

	registry *ModuleRegistry
	logger   Logger
	panics   PanicHandler

	mu                    sync.Mutex
	taskMap               map[TaskID]*TaskDescriptor
	lastSeenResponseCount uint32
	ready                 bool
	refd                  bool
	idleTimer             *time.Timer
	destroyed             bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// onReady, onResponse and onError are wired by the scheduler so the
	// handle can report lifecycle edges back onto the control loop without
	// importing the scheduler type (avoids an import cycle within the
	// package while keeping the handle otherwise self-contained).
	onReady    func(*WorkerHandle)
	onResponse func(*WorkerHandle)
	onError    func(*WorkerHandle, error)
}

// NewWorkerHandle creates a pending worker and starts its run loop. It
// does not block for the ready sentinel — that arrives asynchronously on
// onReady, per spec.md §4.2.
func NewWorkerHandle(registry *ModuleRegistry, logger Logger, panics PanicHandler, onReady, onResponse func(*WorkerHandle), onError func(*WorkerHandle, error)) *WorkerHandle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &WorkerHandle{
		ID:         NewWorkerID(),
		wake:       NewWakeChannel(8),
		registry:   registry,
		logger:     logger,
		panics:     panics,
		taskMap:    make(map[TaskID]*TaskDescriptor),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		onReady:    onReady,
		onResponse: onResponse,
		onError:    onError,
	}
	go h.runLoop()
	return h
}

// runLoop is the worker's dedicated goroutine: bootstrap, emit ready,
// then service envelopes until destroyed. A panic escaping the loop body
// itself (as opposed to a module panic, which execute already recovers)
// is the Go analogue of spec.md §4.5's "underlying thread emits an
// error" — reported via onError rather than crashing the process, matching
// SingleThreadTaskRunner's run-loop recover.
func (h *WorkerHandle) runLoop() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			if h.onError != nil {
				h.onError(h, fmt.Errorf("worker %s run loop panicked: %v", h.ID, r))
			}
		}
	}()

	if h.onReady != nil {
		h.onReady(h)
	}

	for {
		select {
		case env, ok := <-h.wake.toWorker:
			if !ok {
				return
			}
			h.execute(env)
		case <-h.ctx.Done():
			return
		}
	}
}

// reportError invokes the configured onError callback directly — used by
// tests to simulate a worker failure without requiring an actual panic.
func (h *WorkerHandle) reportError(err error) {
	if h.onError != nil {
		h.onError(h, err)
	}
}

// execute invokes the resolved module and posts the response, recovering
// from a module panic via the configured PanicHandler.
func (h *WorkerHandle) execute(env *envelope) {
	var result any
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				if h.panics != nil {
					h.panics.HandlePanic(h.ctx, h.ID, r, debug.Stack())
				}
				err = fmt.Errorf("core: module %q panicked: %v", env.ModuleName, r)
			}
		}()

		fn, ok := h.registry.Resolve(env.ModuleName)
		if !ok {
			err = &ErrModuleNotFound{ModuleName: env.ModuleName}
			return
		}
		ctx := ContextWithTransferList(h.ctx, env.TransferList)
		result, err = fn(ctx, env.Payload)
	}()

	h.wake.postResponse(&workerResponse{TaskID: env.TaskID, Result: result, Err: err})
	if h.onResponse != nil {
		h.onResponse(h)
	}
}

// post implements spec.md §4.2's post(descriptor): records the
// descriptor, stamps its owning worker, and sends the envelope. Callers
// must already hold whatever invariant guarantees task_id is absent from
// task_map (the scheduler never dispatches to a worker twice for the
// same descriptor).
func (h *WorkerHandle) post(d *TaskDescriptor) {
	for _, m := range d.TransferList {
		if m.alreadyDetached() {
			d.Complete(nil, NewInvalidTransferError(fmt.Errorf("worker %s: transfer list entry already moved", h.ID)))
			return
		}
	}

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		d.Complete(nil, NewThreadTerminationError(fmt.Errorf("worker %s already destroyed", h.ID)))
		return
	}
	if _, exists := h.taskMap[d.TaskID]; exists {
		h.mu.Unlock()
		panic(fmt.Sprintf("core: task %d already posted to worker %s", d.TaskID, h.ID))
	}
	h.taskMap[d.TaskID] = d
	h.stopIdleTimerLocked()
	h.refLocked()
	h.mu.Unlock()

	d.Dispatch(h)
	h.wake.postRequest(&envelope{
		TaskID:       d.TaskID,
		Payload:      d.Payload,
		ModuleName:   d.ModuleName,
		TransferList: d.TransferList,
	})
}

// takeResponse removes and returns the descriptor for resp.TaskID, if
// still present (it may already have been completed by a destroy()
// racing with this response).
func (h *WorkerHandle) takeResponse(resp *workerResponse) (*TaskDescriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.taskMap[resp.TaskID]
	if !ok {
		return nil, false
	}
	delete(h.taskMap, resp.TaskID)
	if len(h.taskMap) == 0 {
		h.unrefLocked()
	}
	return d, true
}

// drainPendingResponses implements §4.1's fast path for this worker:
// a non-blocking drain of every response already sitting on the port.
func (h *WorkerHandle) drainPendingResponses(handle func(*TaskDescriptor, *workerResponse)) {
	h.wake.drainResponses(func(resp *workerResponse) {
		if d, ok := h.takeResponse(resp); ok {
			handle(d, resp)
		}
	})
	h.mu.Lock()
	h.lastSeenResponseCount = h.wake.ResponseCount()
	h.mu.Unlock()
}

// hasUnseenResponses reports whether response_count has advanced past
// what this handle last observed — the trigger condition for the §4.1
// fast-path scan.
func (h *WorkerHandle) hasUnseenResponses() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wake.ResponseCount() != h.lastSeenResponseCount
}

// markReady transitions pending->ready exactly once. If the worker is
// already idle when it becomes ready, its port is unreffed immediately.
func (h *WorkerHandle) markReady() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ready {
		return
	}
	h.ready = true
	if len(h.taskMap) == 0 {
		h.unrefLocked()
	}
}

// IsReady reports whether the ready sentinel has been observed.
func (h *WorkerHandle) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// currentUsage implements spec.md §4.2: infinite when the worker holds
// exactly one abortable descriptor, otherwise |task_map|.
func (h *WorkerHandle) currentUsage() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.taskMap) == 1 {
		for _, d := range h.taskMap {
			if d.IsAbortable() {
				return math.MaxInt32
			}
		}
	}
	return len(h.taskMap)
}

// taskCount returns |task_map| without the abortable-monopoly inflation
// currentUsage applies — used by invariant checks and observability.
func (h *WorkerHandle) taskCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.taskMap)
}

// armIdleTimer schedules fn to run after d if the worker is still idle
// when it fires. Replaces any previously armed timer.
func (h *WorkerHandle) armIdleTimer(d time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopIdleTimerLocked()
	h.idleTimer = time.AfterFunc(d, fn)
}

func (h *WorkerHandle) stopIdleTimerLocked() {
	if h.idleTimer != nil {
		h.idleTimer.Stop()
		h.idleTimer = nil
	}
}

func (h *WorkerHandle) refLocked()   { h.refd = true }
func (h *WorkerHandle) unrefLocked() { h.refd = false }

// Refd reports whether the handle currently considers its port
// reffed — exposed for tests, since Go goroutines don't need an explicit
// ref to keep the process alive the way the spec's worker_threads port
// does; we still track the boolean for fidelity to §5's resource model.
func (h *WorkerHandle) Refd() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refd
}

// destroy implements spec.md §4.2's destroy(): terminates the run loop,
// closes the port, clears the idle timer, and completes every
// in-flight descriptor with cause (a thread_termination error when cause
// is nil). It returns the descriptors it completed.
func (h *WorkerHandle) destroy(cause error) []*TaskDescriptor {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.stopIdleTimerLocked()
	snapshot := make([]*TaskDescriptor, 0, len(h.taskMap))
	for _, d := range h.taskMap {
		snapshot = append(snapshot, d)
	}
	h.taskMap = make(map[TaskID]*TaskDescriptor)
	h.mu.Unlock()

	h.cancel()
	h.wake.close()
	<-h.done

	if cause == nil {
		cause = NewThreadTerminationError(fmt.Errorf("worker %s destroyed", h.ID))
	}
	for _, d := range snapshot {
		d.Complete(nil, cause)
	}
	return snapshot
}
