package core

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskQueue is the FIFO backlog of spec.md §3: tasks awaiting dispatch,
// ordered by submission order, with no priority notion (priority queues
// are an explicit Non-goal). Backed by github.com/eapache/queue's ring
// buffer instead of the teacher's hand-rolled slice-with-compaction
// FIFOTaskQueue (core/queue.go in the teacher), which grew a second,
// unused priority-heap implementation this pool has no use for.
type TaskQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewTaskQueue creates an empty TaskQueue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{q: queue.New()}
}

// Push appends d to the tail of the queue.
func (q *TaskQueue) Push(d *TaskDescriptor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.q.Add(d)
}

// Pop removes and returns the head of the queue.
func (q *TaskQueue) Pop() (*TaskDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Length() == 0 {
		return nil, false
	}
	d := q.q.Peek().(*TaskDescriptor)
	q.q.Remove()
	return d, true
}

// RemoveByID removes the descriptor with the given TaskID, preserving
// the relative order of everything else — used by spec.md §4.4's
// "abort of a queued submission removes exactly that submission; queue
// order is preserved for the rest." eapache/queue has no random-removal
// primitive, so this rebuilds the queue; fine at the sizes a bounded
// backlog reaches.
func (q *TaskQueue) RemoveByID(id TaskID) (*TaskDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.q.Length()
	var removed *TaskDescriptor
	rebuilt := queue.New()
	for i := 0; i < n; i++ {
		d := q.q.Get(i).(*TaskDescriptor)
		if removed == nil && d.TaskID == id {
			removed = d
			continue
		}
		rebuilt.Add(d)
	}
	q.q = rebuilt
	return removed, removed != nil
}

// Len returns the number of queued descriptors.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}

// IsEmpty reports whether the queue holds no descriptors.
func (q *TaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drains the queue and returns everything that was in it, so the
// caller (pool Destroy, per spec.md §4.6) can fail each one explicitly.
func (q *TaskQueue) Clear() []*TaskDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.q.Length()
	drained := make([]*TaskDescriptor, 0, n)
	for i := 0; i < n; i++ {
		drained = append(drained, q.q.Get(i).(*TaskDescriptor))
	}
	q.q = queue.New()
	return drained
}
