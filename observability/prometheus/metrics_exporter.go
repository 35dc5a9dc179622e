package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nodeworker/workerpool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors, push-style:
// the scheduler calls these methods directly as events happen (wait/run
// samples, completions, worker-count edges), matching SPEC_FULL.md's
// domain-stack wiring for the histogram/metrics collaborator of spec.md
// §6. Several pools can share one registry; each is distinguished by the
// "pool" label.
type MetricsExporter struct {
	waitSeconds       *prom.HistogramVec
	runSeconds        *prom.HistogramVec
	completedTotal    *prom.CounterVec
	queueDepth        *prom.GaugeVec
	workers           *prom.GaugeVec
	workerErrorsTotal *prom.CounterVec

	pool string
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for a
// pool named poolName, reporting via core.Metrics.
func NewMetricsExporter(namespace, poolName string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "workerpool"
	}
	if poolName == "" {
		poolName = "default"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	waitVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "wait_time_seconds",
		Help:      "Time a task spent queued before dispatch.",
		Buckets:   buckets,
	}, []string{"pool"})
	runVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_time_seconds",
		Help:      "Time a dispatched task spent executing.",
		Buckets:   buckets,
	}, []string{"pool"})
	completedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "completed_total",
		Help:      "Total number of tasks completed.",
	}, []string{"pool"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current (clamped) queue depth.",
	}, []string{"pool"})
	workersVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Current worker count by ready-state.",
	}, []string{"pool", "state"})
	workerErrorsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_errors_total",
		Help:      "Total number of worker errors not attributable to any in-flight task.",
	}, []string{"pool"})

	var err error
	if waitVec, err = registerCollector(reg, waitVec); err != nil {
		return nil, err
	}
	if runVec, err = registerCollector(reg, runVec); err != nil {
		return nil, err
	}
	if completedVec, err = registerCollector(reg, completedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if workersVec, err = registerCollector(reg, workersVec); err != nil {
		return nil, err
	}
	if workerErrorsVec, err = registerCollector(reg, workerErrorsVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		waitSeconds:       waitVec,
		runSeconds:        runVec,
		completedTotal:    completedVec,
		queueDepth:        queueDepthVec,
		workers:           workersVec,
		workerErrorsTotal: workerErrorsVec,
		pool:              poolName,
	}, nil
}

// RecordWaitTime implements core.Metrics.
func (m *MetricsExporter) RecordWaitTime(d time.Duration) {
	if m == nil {
		return
	}
	m.waitSeconds.WithLabelValues(m.pool).Observe(d.Seconds())
}

// RecordRunTime implements core.Metrics.
func (m *MetricsExporter) RecordRunTime(d time.Duration) {
	if m == nil {
		return
	}
	m.runSeconds.WithLabelValues(m.pool).Observe(d.Seconds())
}

// IncCompleted implements core.Metrics.
func (m *MetricsExporter) IncCompleted() {
	if m == nil {
		return
	}
	m.completedTotal.WithLabelValues(m.pool).Inc()
}

// SetQueueDepth implements core.Metrics.
func (m *MetricsExporter) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(m.pool).Set(float64(depth))
}

// SetWorkerCounts implements core.Metrics.
func (m *MetricsExporter) SetWorkerCounts(pending, ready int) {
	if m == nil {
		return
	}
	m.workers.WithLabelValues(m.pool, "pending").Set(float64(pending))
	m.workers.WithLabelValues(m.pool, "ready").Set(float64(ready))
}

// RecordWorkerError implements core.Metrics.
func (m *MetricsExporter) RecordWorkerError() {
	if m == nil {
		return
	}
	m.workerErrorsTotal.WithLabelValues(m.pool).Inc()
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
