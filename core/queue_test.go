package core

import "testing"

func newTestDescriptor(id TaskID) *TaskDescriptor {
	return &TaskDescriptor{TaskID: id}
}

// TestTaskQueue_FIFO verifies first-in-first-out ordering.
// Given: a queue with three descriptors pushed in order
// When: they are popped
// Then: they come out in the same order they were pushed
func TestTaskQueue_FIFO(t *testing.T) {
	q := NewTaskQueue()
	q.Push(newTestDescriptor(1))
	q.Push(newTestDescriptor(2))
	q.Push(newTestDescriptor(3))

	for _, want := range []TaskID{1, 2, 3} {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() = false, want descriptor %d", want)
		}
		if got.TaskID != want {
			t.Errorf("Pop().TaskID = %d, want %d", got.TaskID, want)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue = true, want false")
	}
}

// TestTaskQueue_RemoveByID verifies identity-based removal preserves
// order for the remaining elements, matching spec.md §4.4's "abort of a
// queued submission removes exactly that submission; queue order is
// preserved for the rest."
func TestTaskQueue_RemoveByID(t *testing.T) {
	q := NewTaskQueue()
	q.Push(newTestDescriptor(1))
	q.Push(newTestDescriptor(2))
	q.Push(newTestDescriptor(3))

	removed, ok := q.RemoveByID(2)
	if !ok || removed.TaskID != 2 {
		t.Fatalf("RemoveByID(2) = (%v, %v), want (task 2, true)", removed, ok)
	}

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.TaskID != 1 || second.TaskID != 3 {
		t.Errorf("remaining order = [%d, %d], want [1, 3]", first.TaskID, second.TaskID)
	}
}

// TestTaskQueue_RemoveByID_NotFound verifies removal of an absent id is
// a no-op that reports false.
func TestTaskQueue_RemoveByID_NotFound(t *testing.T) {
	q := NewTaskQueue()
	q.Push(newTestDescriptor(1))

	if _, ok := q.RemoveByID(99); ok {
		t.Error("RemoveByID(99) = true, want false")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

// TestTaskQueue_Clear verifies Clear drains and returns every queued
// descriptor so the caller can fail each one explicitly.
func TestTaskQueue_Clear(t *testing.T) {
	q := NewTaskQueue()
	q.Push(newTestDescriptor(1))
	q.Push(newTestDescriptor(2))

	drained := q.Clear()
	if len(drained) != 2 {
		t.Fatalf("len(Clear()) = %d, want 2", len(drained))
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() after Clear() = false, want true")
	}
}
