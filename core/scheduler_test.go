package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nodeworker/workerpool/domain"
)

type submitOutcome struct {
	result any
	err    error
}

func newTestRegistry() *ModuleRegistry {
	r := NewModuleRegistry()
	r.Register("double", func(ctx context.Context, payload any) (any, error) {
		return payload.(int) * 2, nil
	})
	r.Register("sleep", func(ctx context.Context, payload any) (any, error) {
		select {
		case <-time.After(payload.(time.Duration)):
			return "slept", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	r.Register("boom", func(ctx context.Context, payload any) (any, error) {
		return nil, errors.New("boom")
	})
	return r
}

func newTestScheduler(t *testing.T, opts domain.Options) *Scheduler {
	t.Helper()
	cfg, err := domain.Normalize(opts)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	s := NewScheduler(cfg, newTestRegistry(), NewNoOpLogger(), nil, nil)
	t.Cleanup(s.Destroy)
	return s
}

func submitAndWait(s *Scheduler, payload any, moduleName string, abort *AbortSignal) <-chan submitOutcome {
	out := make(chan submitOutcome, 1)
	d := NewTaskDescriptor(payload, nil, moduleName, abort, func(result any, err error) {
		out <- submitOutcome{result: result, err: err}
	})
	s.Submit(d)
	return out
}

func intPtr(v int) *int { return &v }

// TestScheduler_SubmitAndComplete verifies spec.md §8 scenario 1: a
// simple submission resolves with the module's result and advances the
// completed counter and run-time histogram.
func TestScheduler_SubmitAndComplete(t *testing.T) {
	s := newTestScheduler(t, domain.Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})

	out := submitAndWait(s, 2, "double", nil)
	select {
	case got := <-out:
		if got.err != nil {
			t.Fatalf("submission error = %v, want nil", got.err)
		}
		if got.result != 4 {
			t.Fatalf("result = %v, want 4", got.result)
		}
	case <-time.After(time.Second):
		t.Fatal("submission did not complete in time")
	}

	stats := s.Stats()
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.RunTime.Count != 1 {
		t.Errorf("RunTime.Count = %d, want 1", stats.RunTime.Count)
	}
}

// TestScheduler_FilenameNotProvided verifies step 1 of §4.3's admission
// algorithm.
func TestScheduler_FilenameNotProvided(t *testing.T) {
	s := newTestScheduler(t, domain.Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})

	out := submitAndWait(s, nil, "", nil)
	select {
	case got := <-out:
		if !errors.Is(got.err, domain.ErrFilenameNotProvided) {
			t.Fatalf("err = %v, want filename_not_provided", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("submission did not complete in time")
	}
}

// TestScheduler_MinThreadsOnConstruction verifies spec.md §8's "for all
// configurations with min_threads=N: at steady idle state, |workers|==N."
func TestScheduler_MinThreadsOnConstruction(t *testing.T) {
	s := newTestScheduler(t, domain.Options{MinThreads: intPtr(3), MaxThreads: intPtr(3)})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		stats := s.Stats()
		if stats.PendingWorkers+stats.ReadyWorkers == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pool never reached 3 workers")
}

// TestScheduler_NoTaskQueueAvailable verifies spec.md §8's "with
// max_queue=0 and one worker occupied: a second submission rejects with
// no_task_queue_available."
func TestScheduler_NoTaskQueueAvailable(t *testing.T) {
	s := newTestScheduler(t, domain.Options{
		MinThreads: intPtr(1), MaxThreads: intPtr(1), MaxQueue: 0,
	})

	waitForReadyWorkers(t, s, 1)
	first := submitAndWait(s, 50*time.Millisecond, "sleep", nil)

	second := submitAndWait(s, 50*time.Millisecond, "sleep", nil)
	select {
	case got := <-second:
		if !errors.Is(got.err, domain.ErrNoTaskQueueAvailable) {
			t.Fatalf("second submission err = %v, want no_task_queue_available", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("second submission did not resolve in time")
	}

	select {
	case got := <-first:
		if got.err != nil {
			t.Fatalf("first submission err = %v, want nil", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("first submission did not complete in time")
	}
}

// TestScheduler_TaskQueueAtLimit verifies spec.md §8's "with max_queue=1
// and two submissions beyond capacity: the second is queued, the third
// rejects with task_queue_at_limit."
func TestScheduler_TaskQueueAtLimit(t *testing.T) {
	s := newTestScheduler(t, domain.Options{
		MinThreads: intPtr(1), MaxThreads: intPtr(1), MaxQueue: 1,
	})

	waitForReadyWorkers(t, s, 1)
	first := submitAndWait(s, 100*time.Millisecond, "sleep", nil)

	second := submitAndWait(s, 10*time.Millisecond, "sleep", nil)
	third := submitAndWait(s, 10*time.Millisecond, "sleep", nil)

	select {
	case got := <-third:
		if !errors.Is(got.err, domain.ErrTaskQueueAtLimit) {
			t.Fatalf("third submission err = %v, want task_queue_at_limit", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("third submission did not resolve in time")
	}

	for _, ch := range []<-chan submitOutcome{first, second} {
		select {
		case got := <-ch:
			if got.err != nil {
				t.Fatalf("unexpected error = %v", got.err)
			}
		case <-time.After(time.Second):
			t.Fatal("submission did not complete in time")
		}
	}
}

// TestScheduler_AbortDispatched verifies spec.md §8's "abort of a
// dispatched submission: the submission rejects with aborted and the
// worker is torn down and replaced."
func TestScheduler_AbortDispatched(t *testing.T) {
	s := newTestScheduler(t, domain.Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})

	waitForReadyWorkers(t, s, 1)
	abort := NewAbortSignal()
	out := submitAndWait(s, 5*time.Second, "sleep", abort)

	abort.Fire()

	select {
	case got := <-out:
		if !errors.Is(got.err, domain.ErrAborted) {
			t.Fatalf("err = %v, want aborted", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("aborted submission did not resolve in time")
	}

	waitForReadyWorkers(t, s, 1)
}

// TestScheduler_WorkerFailureReplenishes verifies spec.md §4.5/§8
// scenario 5: a worker error completes its in-flight descriptor with the
// thrown error and the pool replenishes to min_threads.
func TestScheduler_WorkerFailureReplenishes(t *testing.T) {
	s := newTestScheduler(t, domain.Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	waitForReadyWorkers(t, s, 1)

	out := submitAndWait(s, 5*time.Second, "sleep", nil)

	var target *WorkerHandle
	deadline := time.Now().Add(time.Second)
	for target == nil && time.Now().Before(deadline) {
		done := make(chan struct{})
		s.post(func() {
			for _, h := range s.workers {
				target = h
			}
			close(done)
		})
		<-done
		if target == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if target == nil {
		t.Fatal("no worker found to fail")
	}

	simulated := errors.New("simulated crash")
	target.reportError(simulated)

	select {
	case got := <-out:
		if got.err == nil {
			t.Fatal("submission err = nil, want simulated crash")
		}
	case <-time.After(time.Second):
		t.Fatal("submission did not resolve after worker failure")
	}

	waitForReadyWorkers(t, s, 1)

	out2 := submitAndWait(s, 3, "double", nil)
	select {
	case got := <-out2:
		if got.err != nil || got.result != 6 {
			t.Fatalf("post-replenishment submission = (%v, %v), want (6, nil)", got.result, got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("post-replenishment submission did not complete")
	}
}

// TestScheduler_Drain verifies the drain channel closes once the queue
// empties.
func TestScheduler_Drain(t *testing.T) {
	s := newTestScheduler(t, domain.Options{
		MinThreads: intPtr(1), MaxThreads: intPtr(1), MaxQueue: "auto",
	})

	out := submitAndWait(s, 1, "double", nil)
	drained := s.Drain()

	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("submission did not complete")
	}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain channel never closed")
	}
}

// TestScheduler_IdleRetirementWithConcurrency2 verifies spec.md §4.3's
// idle-timeout retirement still fires when a worker's usage drops
// straight from 1 to 0 under a concurrency limit of 2 — a regression
// test for the ready pool's available edge, which used to require a
// crossing from at-or-above the limit and so never fired this
// transition when the limit was >= 2.
func TestScheduler_IdleRetirementWithConcurrency2(t *testing.T) {
	s := newTestScheduler(t, domain.Options{
		MinThreads:               intPtr(1),
		MaxThreads:               intPtr(3),
		ConcurrentTasksPerWorker: intPtr(2),
		IdleTimeoutMs:            intPtr(20),
	})
	waitForReadyWorkers(t, s, 1)

	outs := make([]<-chan submitOutcome, 0, 3)
	for i := 0; i < 3; i++ {
		outs = append(outs, submitAndWait(s, 30*time.Millisecond, "sleep", nil))
	}
	for _, out := range outs {
		select {
		case got := <-out:
			if got.err != nil {
				t.Fatalf("submission err = %v, want nil", got.err)
			}
		case <-time.After(time.Second):
			t.Fatal("submission did not complete in time")
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		stats := s.Stats()
		if stats.PendingWorkers+stats.ReadyWorkers == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pool never retired back to min_threads=1")
}

func waitForReadyWorkers(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().ReadyWorkers >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never reached %d ready workers", n)
}
