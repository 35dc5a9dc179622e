// Package workerpool is a worker-thread pool: it dispatches user-defined
// tasks across a managed set of goroutine-backed workers, which all
// resolve modules from the pool's one shared module registry and share
// the caller's address space (they are not isolated from each other),
// and returns results asynchronously to
// the submitting caller. The pool autoscales between a configured
// minimum and maximum worker count, enforces a per-worker concurrency
// limit, queues overflow against a bounded backlog, supports
// cancellation, and records latency histograms for wait and run times.
//
// The engine lives in the core subpackage; this package is the public
// facade, mirroring the shape of a Node.js worker_threads pool (piscina,
// workerpool) without importing anything from that runtime.
package workerpool
