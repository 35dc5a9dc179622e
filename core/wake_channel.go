package core

import "sync/atomic"

// envelope is the controller->worker request posted across a WakeChannel's
// port, carrying everything the worker needs to invoke a module without
// touching the descriptor's scheduler-only fields.
type envelope struct {
	TaskID       TaskID
	Payload      any
	ModuleName   string
	TransferList []*Movable
}

// workerResponse is the worker->controller reply posted across a
// WakeChannel's port once a module invocation returns.
type workerResponse struct {
	TaskID TaskID
	Result any
	Err    error
}

// WakeChannel is the Go realization of spec.md §4.1's shared two-integer
// region plus bidirectional message port: two atomically-accessed
// counters and a pair of buffered channels standing in for the port. The
// "wake notification" is the send on toWorker itself, which the worker's
// run loop selects on between tasks — the idiomatic analogue of a thread
// blocking on Atomics.wait at a shared memory index, since a goroutine
// cannot literally park on an address the way a worker_threads Worker can.
type WakeChannel struct {
	requestCount  atomic.Uint32
	responseCount atomic.Uint32

	toWorker   chan *envelope
	fromWorker chan *workerResponse
}

// NewWakeChannel creates a WakeChannel with the given port buffer depth.
func NewWakeChannel(bufferSize int) *WakeChannel {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &WakeChannel{
		toWorker:   make(chan *envelope, bufferSize),
		fromWorker: make(chan *workerResponse, bufferSize),
	}
}

// postRequest enqueues env on the controller->worker port and bumps
// request_count. The channel send itself is the wake notification: a
// worker goroutine parked in a select on toWorker unblocks the instant
// the value lands, which is the Go analogue of the spec's Atomics.notify
// on a shared index — Go has no address a goroutine can literally block
// on, so the port and the wake primitive collapse into one channel send.
func (w *WakeChannel) postRequest(env *envelope) {
	w.requestCount.Add(1)
	w.toWorker <- env
}

// postResponse is called worker-side: bumps response_count then enqueues
// the reply. The counter write happens-before the channel send completes,
// so a controller that observes the new count via atomic load is
// guaranteed the port also already holds the message (or will, by the
// time a blocking receive returns) — spec.md §5's "fast-path polling is
// guaranteed not to drop responses."
func (w *WakeChannel) postResponse(resp *workerResponse) {
	w.responseCount.Add(1)
	w.fromWorker <- resp
}

// RequestCount returns the current request_count.
func (w *WakeChannel) RequestCount() uint32 { return w.requestCount.Load() }

// ResponseCount returns the current response_count.
func (w *WakeChannel) ResponseCount() uint32 { return w.responseCount.Load() }

// drainResponses performs the §4.1 fast path: a non-blocking drain of
// every pending response on the port, invoking handle for each. It
// returns the number of responses drained.
func (w *WakeChannel) drainResponses(handle func(*workerResponse)) int {
	n := 0
	for {
		select {
		case resp := <-w.fromWorker:
			handle(resp)
			n++
		default:
			return n
		}
	}
}

// close closes the controller->worker direction of the port; the
// worker->controller channel is left open. Safe to call at most once.
func (w *WakeChannel) close() {
	close(w.toWorker)
}
