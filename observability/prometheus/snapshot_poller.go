package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/nodeworker/workerpool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is satisfied by *workerpool.Pool (and by *core.Scheduler
// directly): anything that can produce a point-in-time
// core.Stats snapshot and a utilization figure.
type StatsProvider interface {
	Stats() core.Stats
	Utilization() float64
}

// SnapshotPoller periodically exports StatsProvider.Stats() snapshots as
// Prometheus gauges — a scrape-friendly complement to MetricsExporter's
// push-based counters/histograms, matching the teacher's dual
// push-metrics-plus-poll-snapshot approach (core/observability.go's
// RunnerStats alongside the teacher's own periodic exporter).
type SnapshotPoller struct {
	interval time.Duration

	mu    sync.RWMutex
	pools map[string]StatsProvider

	queueDepth      *prom.GaugeVec
	pendingWorkers  *prom.GaugeVec
	readyWorkers    *prom.GaugeVec
	completedTotal  *prom.GaugeVec
	durationSeconds *prom.GaugeVec
	utilization     *prom.GaugeVec
	latencySeconds  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its
// collectors against reg (prom.DefaultRegisterer if nil).
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_queue_depth",
		Help:      "Queue depth at last poll.",
	}, []string{"pool"})
	pendingWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_pending_workers",
		Help:      "Pending (bootstrapping) worker count at last poll.",
	}, []string{"pool"})
	readyWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_ready_workers",
		Help:      "Ready worker count at last poll.",
	}, []string{"pool"})
	completedTotal := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_completed",
		Help:      "Completed task count at last poll.",
	}, []string{"pool"})
	durationSeconds := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_duration_seconds",
		Help:      "Pool age in seconds at last poll.",
	}, []string{"pool"})
	utilization := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_utilization",
		Help:      "Point-in-time utilization (0-1) at last poll.",
	}, []string{"pool"})
	latencySeconds := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "workerpool",
		Name:      "snapshot_latency_seconds",
		Help:      "Latency histogram summary statistics at last poll.",
	}, []string{"pool", "stage", "quantile"})

	var err error
	if queueDepth, err = registerCollector(reg, queueDepth); err != nil {
		return nil, err
	}
	if pendingWorkers, err = registerCollector(reg, pendingWorkers); err != nil {
		return nil, err
	}
	if readyWorkers, err = registerCollector(reg, readyWorkers); err != nil {
		return nil, err
	}
	if completedTotal, err = registerCollector(reg, completedTotal); err != nil {
		return nil, err
	}
	if durationSeconds, err = registerCollector(reg, durationSeconds); err != nil {
		return nil, err
	}
	if utilization, err = registerCollector(reg, utilization); err != nil {
		return nil, err
	}
	if latencySeconds, err = registerCollector(reg, latencySeconds); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		pools:           make(map[string]StatsProvider),
		queueDepth:      queueDepth,
		pendingWorkers:  pendingWorkers,
		readyWorkers:    readyWorkers,
		completedTotal:  completedTotal,
		durationSeconds: durationSeconds,
		utilization:     utilization,
		latencySeconds:  latencySeconds,
	}, nil
}

// AddPool adds or replaces the StatsProvider polled under name.
func (p *SnapshotPoller) AddPool(name string, provider StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "default")
	p.mu.Lock()
	p.pools[name] = provider
	p.mu.Unlock()
}

// RemovePool stops polling the provider registered under name.
func (p *SnapshotPoller) RemovePool(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.pools, name)
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops until Stop.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.queueDepth.WithLabelValues(name).Set(float64(stats.QueueSize))
		p.pendingWorkers.WithLabelValues(name).Set(float64(stats.PendingWorkers))
		p.readyWorkers.WithLabelValues(name).Set(float64(stats.ReadyWorkers))
		p.completedTotal.WithLabelValues(name).Set(float64(stats.Completed))
		p.durationSeconds.WithLabelValues(name).Set(stats.Duration.Seconds())
		p.utilization.WithLabelValues(name).Set(provider.Utilization())

		p.setLatency(name, "wait", stats.WaitTime)
		p.setLatency(name, "run", stats.RunTime)
	}
}

func (p *SnapshotPoller) setLatency(pool, stage string, snap core.HistogramSnapshot) {
	p.latencySeconds.WithLabelValues(pool, stage, "mean").Set(snap.Mean.Seconds())
	p.latencySeconds.WithLabelValues(pool, stage, "p50").Set(snap.P50.Seconds())
	p.latencySeconds.WithLabelValues(pool, stage, "p90").Set(snap.P90.Seconds())
	p.latencySeconds.WithLabelValues(pool, stage, "p99").Set(snap.P99.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
