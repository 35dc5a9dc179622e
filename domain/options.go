package domain

import (
	"fmt"
	"runtime"
)

// AutoQueue is the sentinel accepted as Options.MaxQueue to request
// max_threads^2, per spec.
const AutoQueue = "auto"

// ResourceLimits is passed through verbatim to worker construction; the
// pool itself never interprets these fields.
type ResourceLimits struct {
	MaxOldGenerationSizeMb   int
	MaxYoungGenerationSizeMb int
	CodeRangeSizeMb          int
	StackSizeMb              int
}

// Options configures a Pool. All fields are optional; Normalize fills in
// and validates defaults.
type Options struct {
	// ModuleName is the default module path used when a submission omits one.
	ModuleName string

	// MinThreads is the floor of the autoscale band (>= 0).
	MinThreads *int
	// MaxThreads is the ceiling of the autoscale band (>= 1).
	MaxThreads *int

	// IdleTimeoutMs is how long, in milliseconds, a supernumerary worker sits
	// idle before retirement.
	IdleTimeoutMs *int

	// MaxQueue bounds the backlog. Accepts an int, the string AutoQueue, or nil
	// (meaning AutoQueue). 0 means reject rather than queue.
	MaxQueue any

	// ConcurrentTasksPerWorker is the per-worker concurrency limit (>= 1).
	ConcurrentTasksPerWorker *int

	// UseAtomics enables the response-counter fast path.
	UseAtomics *bool

	// Passed through verbatim to worker construction.
	ResourceLimits ResourceLimits
	Argv           []string
	Env            map[string]string
	ExecArgv       []string
	WorkerData     any
}

// Normalized is the fully resolved, validated configuration the scheduler
// operates on. Unlike Options, every field here is concrete.
type Normalized struct {
	ModuleName               string
	MinThreads               int
	MaxThreads               int
	IdleTimeoutMs            int
	MaxQueue                 int // resolved; AutoQueue has been expanded
	ConcurrentTasksPerWorker int
	UseAtomics               bool
	ResourceLimits           ResourceLimits
	Argv                     []string
	Env                      map[string]string
	ExecArgv                 []string
	WorkerData               any
}

func defaultMinThreads() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

func defaultMaxThreads() int {
	n := runtime.NumCPU() * 3 / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Normalize validates opts and returns the resolved configuration.
// It fails fast on the first invalid field, per SPEC_FULL.md's ambient
// configuration section — there is no partial/lazy validation.
func Normalize(opts Options) (Normalized, error) {
	n := Normalized{
		ModuleName:     opts.ModuleName,
		ResourceLimits: opts.ResourceLimits,
		Argv:           opts.Argv,
		Env:            opts.Env,
		ExecArgv:       opts.ExecArgv,
		WorkerData:     opts.WorkerData,
	}

	if opts.MinThreads != nil {
		if *opts.MinThreads < 0 {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("min_threads must be >= 0, got %d", *opts.MinThreads))
		}
		n.MinThreads = *opts.MinThreads
	} else {
		n.MinThreads = defaultMinThreads()
	}

	if opts.MaxThreads != nil {
		if *opts.MaxThreads < 1 {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("max_threads must be >= 1, got %d", *opts.MaxThreads))
		}
		n.MaxThreads = *opts.MaxThreads
	} else {
		n.MaxThreads = defaultMaxThreads()
	}

	if n.MinThreads > n.MaxThreads {
		return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("min_threads (%d) must not exceed max_threads (%d)", n.MinThreads, n.MaxThreads))
	}

	if opts.IdleTimeoutMs != nil {
		if *opts.IdleTimeoutMs < 0 {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("idle_timeout must be >= 0, got %d", *opts.IdleTimeoutMs))
		}
		n.IdleTimeoutMs = *opts.IdleTimeoutMs
	} else {
		n.IdleTimeoutMs = 10000
	}

	if opts.ConcurrentTasksPerWorker != nil {
		if *opts.ConcurrentTasksPerWorker < 1 {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("concurrent_tasks_per_worker must be >= 1, got %d", *opts.ConcurrentTasksPerWorker))
		}
		n.ConcurrentTasksPerWorker = *opts.ConcurrentTasksPerWorker
	} else {
		n.ConcurrentTasksPerWorker = 1
	}

	if opts.UseAtomics != nil {
		n.UseAtomics = *opts.UseAtomics
	} else {
		n.UseAtomics = true
	}

	maxQueue := opts.MaxQueue
	if maxQueue == nil {
		maxQueue = AutoQueue
	}
	switch v := maxQueue.(type) {
	case string:
		if v != AutoQueue {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("max_queue string value must be %q, got %q", AutoQueue, v))
		}
		n.MaxQueue = n.MaxThreads * n.MaxThreads
	case int:
		if v < 0 {
			return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("max_queue must be >= 0, got %d", v))
		}
		n.MaxQueue = v
	default:
		return Normalized{}, NewError(KindInvalidOption, fmt.Errorf("max_queue must be an int or %q, got %T", AutoQueue, v))
	}

	return n, nil
}
