package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/nodeworker/workerpool/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type statsStub struct {
	stats       core.Stats
	utilization float64
}

func (s statsStub) Stats() core.Stats    { return s.stats }
func (s statsStub) Utilization() float64 { return s.utilization }

func TestSnapshotPoller_CollectsPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", statsStub{
		stats: core.Stats{
			QueueSize:      4,
			PendingWorkers: 1,
			ReadyWorkers:   3,
			Completed:      9,
			Duration:       5 * time.Second,
			WaitTime:       core.HistogramSnapshot{Mean: 10 * time.Millisecond},
			RunTime:        core.HistogramSnapshot{Mean: 20 * time.Millisecond},
		},
		utilization: 0.42,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queueDepth := testutil.ToFloat64(poller.queueDepth.WithLabelValues("pool-a"))
		ready := testutil.ToFloat64(poller.readyWorkers.WithLabelValues("pool-a"))
		return queueDepth == 4 && ready == 3
	})

	if got := testutil.ToFloat64(poller.completedTotal.WithLabelValues("pool-a")); got != 9 {
		t.Fatalf("completed gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.utilization.WithLabelValues("pool-a")); got != 0.42 {
		t.Fatalf("utilization gauge = %v, want 0.42", got)
	}
	if got := testutil.ToFloat64(poller.latencySeconds.WithLabelValues("pool-a", "wait", "mean")); got != 0.01 {
		t.Fatalf("wait mean gauge = %v, want 0.01", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
