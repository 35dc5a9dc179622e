package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskID is a unique, monotonically increasing submission identifier.
type TaskID uint64

var taskIDCounter uint64

// NextTaskID returns the next monotonically increasing TaskID. Shared
// across every Pool in the process, matching the teacher's habit of
// process-wide atomic counters (core/task_scheduler.go's metric fields).
func NextTaskID() TaskID {
	return TaskID(atomic.AddUint64(&taskIDCounter, 1))
}

// AbortSignal is a single-shot observable a caller can fire to cancel a
// submission. Firing it more than once is a no-op.
type AbortSignal struct {
	ch   chan struct{}
	once sync.Once
}

// NewAbortSignal creates an unfired AbortSignal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{ch: make(chan struct{})}
}

// Fire signals cancellation. Safe to call multiple times or concurrently.
func (a *AbortSignal) Fire() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.ch) })
}

// C returns the channel that closes when Fire is called.
func (a *AbortSignal) C() <-chan struct{} {
	if a == nil {
		return nil
	}
	return a.ch
}

// CompletionFunc is invoked exactly once when a TaskDescriptor finishes,
// whether by success, remote error, thread termination, or abort.
type CompletionFunc func(result any, err error)

// TaskDescriptor is the per-submission record described in spec.md §3.
type TaskDescriptor struct {
	TaskID        TaskID
	CorrelationID uuid.UUID
	Payload       any
	TransferList  []*Movable
	ModuleName    string
	AbortHook     *AbortSignal

	CreatedAt time.Time
	StartedAt time.Time

	// OwningWorker is a plain back-reference, not an owning pointer: the
	// worker handle's task_map is the owning relation (see DESIGN.md).
	OwningWorker *WorkerHandle

	completeOnce sync.Once
	onComplete   CompletionFunc
}

// NewTaskDescriptor builds a descriptor stamped with CreatedAt and a fresh
// TaskID/CorrelationID, ready for admission by the scheduler.
func NewTaskDescriptor(payload any, transferList []*Movable, moduleName string, abort *AbortSignal, onComplete CompletionFunc) *TaskDescriptor {
	return &TaskDescriptor{
		TaskID:        NextTaskID(),
		CorrelationID: uuid.New(),
		Payload:       payload,
		TransferList:  transferList,
		ModuleName:    moduleName,
		AbortHook:     abort,
		CreatedAt:     time.Now(),
		onComplete:    onComplete,
	}
}

// IsAbortable reports whether this descriptor carries a cancellation hook.
// Abortable tasks monopolize their worker per spec.md §4.2's current_usage.
func (d *TaskDescriptor) IsAbortable() bool {
	return d.AbortHook != nil
}

// Complete invokes the completion callback exactly once. Subsequent calls
// are no-ops, mechanically enforcing the "exactly once" invariant of
// spec.md §3 instead of relying on caller discipline.
func (d *TaskDescriptor) Complete(result any, err error) {
	d.completeOnce.Do(func() {
		if d.onComplete != nil {
			d.onComplete(result, err)
		}
	})
}

// Dispatch stamps StartedAt, records the owning worker, and detaches
// every transfer-list entry so its backing buffer is handed off rather
// than copied — spec.md §8's "move(x) renders the controller-side
// buffer detached" property. Called exactly once by WorkerHandle.post,
// immediately before it sends the envelope.
func (d *TaskDescriptor) Dispatch(worker *WorkerHandle) {
	d.StartedAt = time.Now()
	d.OwningWorker = worker
	for _, m := range d.TransferList {
		m.detach()
	}
}
