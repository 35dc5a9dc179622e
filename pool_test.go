package workerpool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

type byteBuf struct{ b []byte }

func (b *byteBuf) Detach() []byte {
	out := b.b
	b.b = nil
	return out
}

// TestPool_SubmitResolves verifies the facade's happy path: register a
// module, submit, wait on the Submission.
func TestPool_SubmitResolves(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("double", func(ctx context.Context, payload any) (any, error) {
		return payload.(int) * 2, nil
	})

	sub := p.Submit(21, WithModuleName("double"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
}

// TestPool_SubmitFilenameNotProvided verifies a submission with neither
// an explicit module name nor a pool-level default resolves with
// ErrFilenameNotProvided.
func TestPool_SubmitFilenameNotProvided(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	sub := p.Submit("payload")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = sub.Wait(ctx)
	if !errors.Is(err, ErrFilenameNotProvided) {
		t.Fatalf("err = %v, want ErrFilenameNotProvided", err)
	}
}

// TestPool_Abort verifies the WithAbort option cancels an in-flight
// submission.
func TestPool_Abort(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("sleep", func(ctx context.Context, payload any) (any, error) {
		select {
		case <-time.After(payload.(time.Duration)):
			return "slept", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	abort := NewAbortSignal()
	sub := p.Submit(5*time.Second, WithModuleName("sleep"), WithAbort(abort))
	abort.Fire()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = sub.Wait(ctx)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}

// TestPool_TransferList verifies Move/WithTransferList round-trip
// through Submit without the facade itself interpreting the payload.
func TestPool_TransferList(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("echo", func(ctx context.Context, payload any) (any, error) {
		return payload, nil
	})

	buf := &byteBuf{b: []byte("hello")}
	movable := Move(buf)

	sub := p.Submit("payload", WithModuleName("echo"), WithTransferList(movable))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := sub.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(buf.b) != 0 {
		t.Errorf("buf.b after transfer = %v, want detached (empty)", buf.b)
	}
}

// TestPool_TransferListDeliveredToModule verifies a module invocation can
// recover the moved handle via TransferListFromContext instead of only
// the controller side observing the detach.
func TestPool_TransferListDeliveredToModule(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("read-transfer", func(ctx context.Context, payload any) (any, error) {
		list := TransferListFromContext(ctx)
		if len(list) != 1 {
			return nil, fmt.Errorf("transfer list len = %d, want 1", len(list))
		}
		return string(list[0].MovedBytes()), nil
	})

	buf := &byteBuf{b: []byte("hello")}
	movable := Move(buf)

	sub := p.Submit("payload", WithModuleName("read-transfer"), WithTransferList(movable))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %v, want %q", result, "hello")
	}
}

// TestPool_TransferListReuseRejected verifies re-dispatching an
// already-moved Movable rejects with ErrInvalidTransfer instead of
// silently detaching it a second time.
func TestPool_TransferListReuseRejected(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("echo", func(ctx context.Context, payload any) (any, error) {
		return payload, nil
	})

	buf := &byteBuf{b: []byte("hello")}
	movable := Move(buf)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Submit("first", WithModuleName("echo"), WithTransferList(movable)).Wait(ctx); err != nil {
		t.Fatalf("first submission error = %v", err)
	}

	_, err = p.Submit("second", WithModuleName("echo"), WithTransferList(movable)).Wait(ctx)
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("err = %v, want ErrInvalidTransfer", err)
	}
}

// TestPool_Stats verifies Stats/Utilization surface through the facade
// after a completed submission.
func TestPool_Stats(t *testing.T) {
	p, err := New(Options{MinThreads: intPtr(1), MaxThreads: intPtr(1)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)

	p.RegisterModule("double", func(ctx context.Context, payload any) (any, error) {
		return payload.(int) * 2, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Submit(2, WithModuleName("double")).Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	stats := p.Stats()
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if u := p.Utilization(); u < 0 || u > 1 {
		t.Errorf("Utilization() = %v, want in [0,1]", u)
	}
}
