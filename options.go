// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package stackloop

import "golang.org/x/time/rate"

// --- Reactor options ---

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	scheduler      SchedulerConfig
	metricsEnabled bool
	logger         Logger
}

// ReactorOption configures a Reactor instance.
type ReactorOption interface {
	applyReactor(*reactorOptions) error
}

type reactorOptionFunc struct {
	fn func(*reactorOptions) error
}

func (o *reactorOptionFunc) applyReactor(opts *reactorOptions) error {
	return o.fn(opts)
}

// WithSchedulerConfig sets the Scheduler configuration the Reactor builds
// its internal Scheduler from.
func WithSchedulerConfig(cfg SchedulerConfig) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.scheduler = cfg
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Reactor (resume
// latency percentiles, ready-queue depth, resume rate). Adds minimal overhead; disable in
// latency-critical deployments.
func WithMetrics(enabled bool) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger attaches a structured [Logger] to this Reactor instance,
// overriding the package-level logger set via [SetStructuredLogger] for
// events this Reactor and its Coroutines emit.
func WithLogger(logger Logger) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveReactorOptions applies ReactorOption instances to reactorOptions.
func resolveReactorOptions(opts []ReactorOption) (*reactorOptions, error) {
	cfg := &reactorOptions{
		scheduler: DefaultSchedulerConfig(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = getGlobalLogger()
	}
	return cfg, nil
}

// --- Pool configuration ---

// PoolConfig configures a [Pool]. [NewPool] replaces only a zero StackSize
// (with [DefaultStackSize]); every other field is used as given.
// [DefaultPoolConfig] returns a PoolConfig with all the defaults below set.
type PoolConfig struct {
	// StackSize is the size, in bytes, of each pooled stack. Must be
	// between 4 KiB and 8 MiB. Default 64 KiB.
	StackSize int

	// InitialCount is the number of slots pre-allocated by Warmup when the
	// Pool is created. Default 64.
	InitialCount int

	// MaxCount bounds the number of slots the Pool will ever create. Zero
	// means unbounded.
	MaxCount int

	// UseGuardPages enables guard-page-protected stack allocation via
	// mmap/mprotect. Default true.
	UseGuardPages bool

	// ThreadSafe gates an internal mutex around Acquire/Release/Warmup/
	// Shrink/Stats. Default false (single-owner pool).
	ThreadSafe bool
}

const (
	// DefaultStackSize is the default stack size for pooled and unpooled
	// coroutines: 64 KiB.
	DefaultStackSize = 64 * 1024

	// MinStackSize is the minimum stack size accepted by NewCoroutine and
	// NewPool: 4 KiB.
	MinStackSize = 4 * 1024

	// MaxStackSize is the maximum stack size accepted by NewCoroutine and
	// NewPool: 8 MiB.
	MaxStackSize = 8 * 1024 * 1024
)

// DefaultPoolConfig returns the spec-mandated defaults: 64 KiB stacks, 64
// pre-warmed slots, unbounded growth, guard pages on, single-owner.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		StackSize:     DefaultStackSize,
		InitialCount:  64,
		MaxCount:      0,
		UseGuardPages: true,
		ThreadSafe:    false,
	}
}

// --- Scheduler configuration ---

// QueueKind selects the Scheduler's ready-queue concurrency model.
type QueueKind int

const (
	// QueueKindSPSC assumes a single producer (the Reactor's own tick
	// goroutine) and a single consumer, avoiding lock overhead.
	QueueKindSPSC QueueKind = iota

	// QueueKindMPSC allows Schedule to be called safely from any
	// goroutine; only the Reactor's tick goroutine ever dequeues. This is
	// what lets an adapter's completion callback - possibly running on a
	// goroutine owned by a third-party driver - call Promise.Complete
	// directly.
	QueueKindMPSC
)

// SchedulerConfig configures a [Scheduler].
type SchedulerConfig struct {
	// ReadyQueueCapacity bounds the number of coroutines that may be
	// enqueued awaiting resume at once. Default 4096.
	ReadyQueueCapacity int

	// MaxResumePerTick bounds how many ready coroutines a single Tick call
	// resumes. Default 64.
	MaxResumePerTick int

	// QueueKind selects the concurrency model for Schedule. Default
	// QueueKindMPSC.
	QueueKind QueueKind

	// ResumeRateLimit, if non-nil, additionally throttles the rate at
	// which Tick resumes coroutines, independent of MaxResumePerTick. This
	// is an ambient resilience knob, not a spec-mandated field: it never
	// changes the FIFO order or the per-tick budget, it only makes Tick
	// stop early, leaving the rest queued, when the limiter's tokens are
	// exhausted. Nil (the
	// default) disables rate limiting entirely.
	ResumeRateLimit *rate.Limiter
}

// DefaultSchedulerConfig returns the spec-mandated defaults: a 4096-entry
// MPSC ready queue, a 64-resume-per-tick budget, and no rate limiting.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ReadyQueueCapacity: 4096,
		MaxResumePerTick:   64,
		QueueKind:          QueueKindMPSC,
	}
}

// --- Coroutine configuration ---

// CoroutineConfig configures a single [Coroutine].
type CoroutineConfig struct {
	// StackSize is range-checked against [MinStackSize]/[MaxStackSize] by
	// NewCoroutine when UsePool is false; the coroutine's goroutine stack is
	// managed by the Go runtime and is not sized from it. Ignored when
	// UsePool is true (the Pool's own StackSize applies). Default 64 KiB.
	StackSize int

	// UsePool, when true, acquires the Coroutine's stack from Pool instead
	// of allocating a fresh one.
	UsePool bool

	// Pool is the Pool to acquire from when UsePool is true. Required in
	// that case.
	Pool *Pool
}

// DefaultCoroutineConfig returns a config for an unpooled, 64 KiB-stack
// coroutine.
func DefaultCoroutineConfig() CoroutineConfig {
	return CoroutineConfig{StackSize: DefaultStackSize}
}
