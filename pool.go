package workerpool

import (
	"github.com/nodeworker/workerpool/core"
	"github.com/nodeworker/workerpool/domain"
)

// Pool is the public facade over the scheduler core: construct one with
// New, register modules with RegisterModule, and dispatch work with
// Submit.
type Pool struct {
	scheduler *core.Scheduler
	registry  *core.ModuleRegistry
}

// poolConfig collects PoolOption values, mirroring the teacher's
// TaskSchedulerConfig pattern of an options struct filled in before
// construction (core/task_scheduler.go's PanicHandler/Metrics/
// RejectedTaskHandler fields).
type poolConfig struct {
	logger  core.Logger
	panics  core.PanicHandler
	metrics core.Metrics
}

// PoolOption configures ambient collaborators on a Pool that Options
// (the domain-level scaling/queueing knobs) has no business carrying.
type PoolOption func(*poolConfig)

// WithLogger overrides the pool's default bilog-backed logger.
func WithLogger(l core.Logger) PoolOption {
	return func(c *poolConfig) { c.logger = l }
}

// WithPanicHandler overrides the pool's default panic handler.
func WithPanicHandler(p core.PanicHandler) PoolOption {
	return func(c *poolConfig) { c.panics = p }
}

// WithMetrics wires an observability sink (e.g. the prometheus exporter)
// into the pool. Defaults to core.NilMetrics.
func WithMetrics(m core.Metrics) PoolOption {
	return func(c *poolConfig) { c.metrics = m }
}

// New normalizes opts and starts a Pool filled to MinThreads, mirroring
// spec.md §4's "construction fills the pool to min_threads before
// returning" guarantee.
func New(opts Options, poolOpts ...PoolOption) (*Pool, error) {
	cfg, err := domain.Normalize(opts)
	if err != nil {
		return nil, err
	}

	pc := poolConfig{}
	for _, o := range poolOpts {
		o(&pc)
	}
	if pc.logger == nil {
		pc.logger = core.NewDefaultLogger()
	}
	if pc.panics == nil {
		pc.panics = &core.DefaultPanicHandler{Logger: pc.logger}
	}
	if pc.metrics == nil {
		pc.metrics = &core.NilMetrics{}
	}

	registry := core.NewModuleRegistry()
	scheduler := core.NewScheduler(cfg, registry, pc.logger, pc.panics, pc.metrics)

	return &Pool{scheduler: scheduler, registry: registry}, nil
}

// RegisterModule associates name with fn. Submissions naming it (or
// relying on Options.ModuleName as a default) dispatch to it.
func (p *Pool) RegisterModule(name string, fn core.ModuleFunc) {
	p.registry.Register(name, fn)
}

// Submit admits payload for dispatch and returns a Submission the caller
// can Wait on. Submit never blocks on admission outcome — rejection,
// like success, resolves the returned Submission asynchronously.
func (p *Pool) Submit(payload any, opts ...SubmitOption) *Submission {
	cfg := submitConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	sub := &Submission{done: make(chan struct{})}
	d := core.NewTaskDescriptor(payload, cfg.transferList, cfg.moduleName, cfg.abort, func(result any, err error) {
		sub.result = result
		sub.err = err
		close(sub.done)
	})
	p.scheduler.Submit(d)
	return sub
}

// Drain returns a channel that closes once the backlog empties. A pool
// already idle closes it immediately.
func (p *Pool) Drain() <-chan struct{} {
	return p.scheduler.Drain()
}

// Errors returns the channel worker errors not attributable to any
// in-flight submission are reported on, per spec.md §4.5's
// pool-level event collaborator.
func (p *Pool) Errors() <-chan error {
	return p.scheduler.Errors()
}

// Stats returns a point-in-time snapshot of queue depth, worker counts,
// completed count, and latency histograms.
func (p *Pool) Stats() core.Stats {
	return p.scheduler.Stats()
}

// Utilization reports total recorded run time (mean run time times the
// number of run-time samples) divided by pool age times max_threads.
func (p *Pool) Utilization() float64 {
	return p.scheduler.Utilization()
}

// Destroy tears down every worker and fails every queued submission with
// a thread_termination error, then blocks until shutdown completes.
func (p *Pool) Destroy() {
	p.scheduler.Destroy()
}
