package core

import (
	"context"
	"fmt"
	"time"

	"github.com/nodeworker/workerpool/domain"
)

// Scheduler is the engine of spec.md §4.3-§4.6: autoscale, queue
// admission, worker selection, dispatch, cancellation, worker-failure
// handling and shutdown. Per spec.md §5 the controller is conceptually
// single-threaded; here that maps to one dedicated control goroutine
// that owns every piece of mutable scheduler state (queue, pool,
// histograms, counters) — the same shape as the teacher's
// SingleThreadTaskRunner, renamed controlLoop. Every externally callable
// method hops onto that goroutine via post() instead of taking a lock.
type Scheduler struct {
	cfg      domain.Normalized
	registry *ModuleRegistry
	logger   Logger
	panics   PanicHandler
	metrics  Metrics

	control chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Everything below is touched only on the control goroutine.
	queue   *TaskQueue
	pool    *ReadyPool
	workers map[WorkerID]*WorkerHandle

	inProcessPendingMessages   bool
	workerFailsDuringBootstrap bool

	startedAt time.Time
	completed uint64
	waitHist  *Histogram
	runHist   *Histogram

	drainWaiters []chan struct{}
	errorsCh     chan error
}

// NewScheduler builds a Scheduler and synchronously fills the pool to
// min_threads before returning, per spec.md §4.3's "on construction the
// pool fills to min_threads."
func NewScheduler(cfg domain.Normalized, registry *ModuleRegistry, logger Logger, panics PanicHandler, metrics Metrics) *Scheduler {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if panics == nil {
		panics = &DefaultPanicHandler{Logger: logger}
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		panics:    panics,
		metrics:   metrics,
		control:   make(chan func(), 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		queue:     NewTaskQueue(),
		workers:   make(map[WorkerID]*WorkerHandle),
		waitHist:  NewHistogram(0),
		runHist:   NewHistogram(0),
		errorsCh:  make(chan error, 16),
		startedAt: time.Now(),
	}
	s.pool = NewReadyPool(cfg.ConcurrentTasksPerWorker, s.onWorkerAvailable)

	go s.controlLoop()

	fillDone := make(chan struct{})
	s.post(func() {
		for i := 0; i < cfg.MinThreads; i++ {
			s.spawnWorker()
		}
		close(fillDone)
	})
	<-fillDone

	return s
}

func (s *Scheduler) controlLoop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.control:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

// post hands fn to the control goroutine. Fire-and-forget: callers that
// need a result close over a channel inside fn and wait on it themselves.
func (s *Scheduler) post(fn func()) {
	select {
	case s.control <- fn:
	case <-s.ctx.Done():
	}
}

// Submit admits d per spec.md §4.3. The outcome (queued, dispatched, or
// rejected) always resolves through d's completion callback — Submit
// itself never blocks the caller.
func (s *Scheduler) Submit(d *TaskDescriptor) {
	s.post(func() { s.admit(d) })
}

// admit implements the 8-step submission algorithm. Runs only on the
// control goroutine.
func (s *Scheduler) admit(d *TaskDescriptor) {
	// Step 1: validate filename.
	if d.ModuleName == "" {
		if s.cfg.ModuleName != "" {
			d.ModuleName = s.cfg.ModuleName
		} else {
			d.Complete(nil, NewFilenameNotProvidedError())
			return
		}
	}

	// Step 2: install the abort hook (descriptor is already built and
	// created_at-stamped by the caller).
	s.watchAbort(d)

	// Step 3: non-empty queue means strict FIFO — admit against effective
	// capacity rather than trying to find a worker.
	if s.queue.Len() > 0 {
		if s.queue.Len() >= s.effectiveCap() {
			if s.cfg.MaxQueue == 0 {
				d.Complete(nil, NewNoTaskQueueAvailableError())
			} else {
				d.Complete(nil, NewTaskQueueAtLimitError())
			}
			return
		}
		if len(s.workers) < s.cfg.MaxThreads {
			s.spawnWorker()
		}
		s.queue.Push(d)
		s.metrics.SetQueueDepth(s.clampedQueueSize())
		return
	}

	// Step 4: queue is empty, try direct dispatch.
	w := s.pool.FindAvailable()

	// Step 5: abortable tasks require an otherwise-idle worker.
	if w != nil && w.currentUsage() != 0 && d.IsAbortable() {
		w = nil
	}

	// Step 6: proactively scale if the candidate is missing or already
	// loaded, independent of whether we'll use it for this submission.
	spawned := false
	if w == nil || w.currentUsage() != 0 {
		if len(s.workers) < s.cfg.MaxThreads {
			s.spawnWorker()
			spawned = true
		}
	}

	// Step 7: nothing selected — reject or queue.
	if w == nil {
		if s.cfg.MaxQueue <= 0 && !spawned {
			d.Complete(nil, NewNoTaskQueueAvailableError())
			return
		}
		s.queue.Push(d)
		s.metrics.SetQueueDepth(s.clampedQueueSize())
		return
	}

	// Step 8: dispatch now.
	s.dispatch(w, d)
}

// effectiveCap implements spec.md §4.3's max_queue + pending_capacity.
func (s *Scheduler) effectiveCap() int {
	return s.cfg.MaxQueue + s.pool.PendingCount()*s.cfg.ConcurrentTasksPerWorker
}

// clampedQueueSize implements spec.md §6's observable queue size.
func (s *Scheduler) clampedQueueSize() int {
	c := s.queue.Len() - s.pool.PendingCount()*s.cfg.ConcurrentTasksPerWorker
	if c < 0 {
		return 0
	}
	return c
}

// dispatch stamps wait-time, posts the descriptor, and lets the ready
// pool re-evaluate the worker's availability edge.
func (s *Scheduler) dispatch(h *WorkerHandle, d *TaskDescriptor) {
	wait := time.Since(d.CreatedAt)
	s.waitHist.Observe(wait)
	s.metrics.RecordWaitTime(wait)

	h.post(d)
	s.pool.NotifyUsageChanged(h)
	s.metrics.SetQueueDepth(s.clampedQueueSize())
}

// spawnWorker constructs a worker, registers it pending, and wires its
// lifecycle callbacks to hop back onto the control goroutine.
func (s *Scheduler) spawnWorker() *WorkerHandle {
	h := NewWorkerHandle(s.registry, s.logger, s.panics,
		func(w *WorkerHandle) { s.post(func() { s.onWorkerReady(w) }) },
		func(w *WorkerHandle) { s.post(func() { s.onWorkerResponse(w) }) },
		func(w *WorkerHandle, err error) { s.post(func() { s.onWorkerError(w, err) }) },
	)
	s.workers[h.ID] = h
	s.pool.AddPending(h)
	s.metrics.SetWorkerCounts(s.pool.PendingCount(), s.pool.ReadyCount())
	return h
}

// onWorkerReady transitions a worker pending->ready. ReadyPool.MarkReady
// fires the available edge itself.
func (s *Scheduler) onWorkerReady(h *WorkerHandle) {
	if _, ok := s.workers[h.ID]; !ok {
		return
	}
	s.pool.MarkReady(h)
	s.metrics.SetWorkerCounts(s.pool.PendingCount(), s.pool.ReadyCount())
}

// onWorkerAvailable is spec.md §4.3's on_worker_available edge handler:
// drain what the worker can now absorb, emit drain if the queue emptied,
// then arm an idle timer if the worker is a supernumerary sitting idle.
func (s *Scheduler) onWorkerAvailable(h *WorkerHandle) {
	if _, ok := s.workers[h.ID]; !ok {
		return
	}
	for s.queue.Len() > 0 && h.currentUsage() < s.cfg.ConcurrentTasksPerWorker {
		d, ok := s.queue.Pop()
		if !ok {
			break
		}
		s.dispatch(h, d)
	}
	s.metrics.SetQueueDepth(s.clampedQueueSize())
	s.emitDrainIfEmpty()
	s.maybeArmIdle(h)
}

func (s *Scheduler) maybeArmIdle(h *WorkerHandle) {
	if h.currentUsage() != 0 {
		return
	}
	if len(s.workers) <= s.cfg.MinThreads {
		return
	}
	h.armIdleTimer(time.Duration(s.cfg.IdleTimeoutMs)*time.Millisecond, func() {
		s.post(func() { s.onIdleTimeout(h) })
	})
}

func (s *Scheduler) onIdleTimeout(h *WorkerHandle) {
	if _, ok := s.workers[h.ID]; !ok {
		return
	}
	if h.currentUsage() != 0 {
		return
	}
	if len(s.workers) <= s.cfg.MinThreads {
		return
	}
	s.destroyWorker(h, NewThreadTerminationError(fmt.Errorf("worker %s retired after idle timeout", h.ID)))
}

// onWorkerResponse implements the controller side of §4.1/§4.2: drain
// this worker's port, then — unless disabled — opportunistically scan
// every other worker for responses it hasn't seen yet, guarded by the
// single-threaded reentrancy latch.
func (s *Scheduler) onWorkerResponse(h *WorkerHandle) {
	if _, ok := s.workers[h.ID]; !ok {
		return
	}
	s.processWorkerResponses(h)
	if s.cfg.UseAtomics {
		s.pollFastPath()
	}
}

func (s *Scheduler) processWorkerResponses(h *WorkerHandle) {
	h.drainPendingResponses(func(d *TaskDescriptor, resp *workerResponse) {
		s.completeDispatched(h, d, resp)
	})
}

func (s *Scheduler) pollFastPath() {
	if s.inProcessPendingMessages {
		return
	}
	s.inProcessPendingMessages = true
	defer func() { s.inProcessPendingMessages = false }()

	for _, w := range s.pool.Ready() {
		if w.hasUnseenResponses() {
			s.processWorkerResponses(w)
		}
	}
}

// completeDispatched implements §4.2's response handling: the descriptor
// has already been removed from the worker's task_map by takeResponse;
// signal the pool, then complete the descriptor.
func (s *Scheduler) completeDispatched(h *WorkerHandle, d *TaskDescriptor, resp *workerResponse) {
	s.pool.NotifyUsageChanged(h)

	runDuration := time.Since(d.StartedAt)
	s.runHist.Observe(runDuration)
	s.metrics.RecordRunTime(runDuration)

	var err error
	if resp.Err != nil {
		err = NewTaskError(resp.Err)
	}
	d.Complete(resp.Result, err)

	s.completed++
	s.metrics.IncCompleted()
}

// watchAbort implements spec.md §4.4's cancellation subscription: exactly
// one abort edge per descriptor, watched from a dedicated goroutine that
// exits as soon as either the abort fires or the descriptor otherwise
// completes.
func (s *Scheduler) watchAbort(d *TaskDescriptor) {
	if d.AbortHook == nil {
		return
	}

	finished := make(chan struct{})
	orig := d.onComplete
	d.onComplete = func(result any, err error) {
		select {
		case <-finished:
		default:
			close(finished)
		}
		if orig != nil {
			orig(result, err)
		}
	}

	go func() {
		select {
		case <-d.AbortHook.C():
			select {
			case <-finished:
				return
			default:
			}
			s.post(func() { s.onAbort(d) })
		case <-finished:
		}
	}()
}

// onAbort implements §4.4: reject before any teardown side effect, then
// either tear down the owning worker (dispatched case) or remove the
// descriptor from the queue by identity (queued case).
func (s *Scheduler) onAbort(d *TaskDescriptor) {
	if d.OwningWorker != nil {
		d.Complete(nil, NewAbortedError())
		w := d.OwningWorker
		s.destroyWorker(w, NewThreadTerminationError(fmt.Errorf("worker %s destroyed: task %d aborted", w.ID, d.TaskID)))
		s.ensureMinimumWorkers()
		return
	}

	if _, ok := s.queue.RemoveByID(d.TaskID); ok {
		d.Complete(nil, NewAbortedError())
		s.metrics.SetQueueDepth(s.clampedQueueSize())
	}
}

// destroyWorker removes h from every scheduler-owned set and tears it
// down, completing whatever it still held with cause.
func (s *Scheduler) destroyWorker(h *WorkerHandle, cause error) {
	delete(s.workers, h.ID)
	s.pool.Remove(h.ID)
	h.destroy(cause)
	s.metrics.SetWorkerCounts(s.pool.PendingCount(), s.pool.ReadyCount())
}

// ensureMinimumWorkers implements the replenishment half of §4.4/§4.5.
func (s *Scheduler) ensureMinimumWorkers() {
	if s.workerFailsDuringBootstrap {
		return
	}
	for len(s.workers) < s.cfg.MinThreads {
		s.spawnWorker()
	}
}

// onWorkerError implements spec.md §4.5. err is whatever the worker's run
// loop reported — a genuine implementation bug, not a module-level task
// error (those are forwarded through the normal response path).
func (s *Scheduler) onWorkerError(h *WorkerHandle, err error) {
	if _, ok := s.workers[h.ID]; !ok {
		return
	}
	reachedReady := h.IsReady()

	delete(s.workers, h.ID)
	s.pool.Remove(h.ID)

	snapshot := h.destroy(NewTaskError(err))
	s.metrics.SetWorkerCounts(s.pool.PendingCount(), s.pool.ReadyCount())

	if len(snapshot) == 0 {
		s.metrics.RecordWorkerError()
		s.fireError(err)
	}

	if !reachedReady {
		s.workerFailsDuringBootstrap = true
		return
	}
	if !s.workerFailsDuringBootstrap {
		s.ensureMinimumWorkers()
	}
}

func (s *Scheduler) fireError(err error) {
	select {
	case s.errorsCh <- err:
	default:
	}
}

// emitDrainIfEmpty implements spec.md §4.3's drain event: fires whenever
// the queue is observed empty, resolving every waiter registered via
// Drain().
func (s *Scheduler) emitDrainIfEmpty() {
	if !s.queue.IsEmpty() {
		return
	}
	for _, ch := range s.drainWaiters {
		close(ch)
	}
	s.drainWaiters = s.drainWaiters[:0]
}

// Drain returns a channel that closes the next time the task queue is
// observed empty (immediately, if it already is).
func (s *Scheduler) Drain() <-chan struct{} {
	ch := make(chan struct{})
	s.post(func() {
		s.drainWaiters = append(s.drainWaiters, ch)
		s.emitDrainIfEmpty()
	})
	return ch
}

// Errors returns the channel stray worker errors (those with no owning
// descriptor) are surfaced on, per spec.md §7's propagation policy.
func (s *Scheduler) Errors() <-chan error {
	return s.errorsCh
}

// Stats returns a point-in-time observability snapshot.
func (s *Scheduler) Stats() Stats {
	resultCh := make(chan Stats, 1)
	s.post(func() {
		resultCh <- s.statsLocked()
	})
	select {
	case st := <-resultCh:
		return st
	case <-s.ctx.Done():
		return Stats{}
	}
}

func (s *Scheduler) statsLocked() Stats {
	inFlight := 0
	for _, h := range s.workers {
		inFlight += h.taskCount()
	}
	return Stats{
		QueueSize:      s.clampedQueueSize(),
		PendingWorkers: s.pool.PendingCount(),
		ReadyWorkers:   s.pool.ReadyCount(),
		InFlightTasks:  inFlight,
		Completed:      s.completed,
		Duration:       time.Since(s.startedAt),
		WaitTime:       s.waitHist.Snapshot(),
		RunTime:        s.runHist.Snapshot(),
	}
}

// Utilization implements spec.md §6's point-in-time utilization formula.
func (s *Scheduler) Utilization() float64 {
	return s.Stats().Utilization(s.cfg.MaxThreads)
}

// Destroy implements spec.md §4.6: fail every queued descriptor, destroy
// every live worker, and wait for each underlying goroutine to exit
// before returning.
func (s *Scheduler) Destroy() {
	allDone := make(chan struct{})
	select {
	case s.control <- func() { s.destroyAll(); close(allDone) }:
		<-allDone
	case <-s.ctx.Done():
	}
	<-s.done
}

func (s *Scheduler) destroyAll() {
	for _, d := range s.queue.Clear() {
		d.Complete(nil, NewThreadTerminationError(fmt.Errorf("pool destroyed")))
	}
	for id, h := range s.workers {
		delete(s.workers, id)
		s.pool.Remove(id)
		h.destroy(NewThreadTerminationError(fmt.Errorf("pool destroyed")))
	}
	s.cancel()
}
