package stackloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// idlePollInterval bounds how long Run waits between ticks when it is idle
// but still pinned by a nonzero refcount and nothing has woken it.
const idlePollInterval = 50 * time.Millisecond

// Reactor is the single-threaded cooperative runtime that owns a
// [Scheduler], a handle [registry], and (optionally) a [Metrics]
// collector. Exactly one goroutine - the one running Run, which calls Tick
// in a loop - ever resumes the coroutines it owns, per spec.md §5's
// single-threaded-per-reactor model.
type Reactor struct {
	scheduler *Scheduler
	registry  *registry
	arena     *Arena
	logger    Logger
	metrics   *Metrics
	rateCtr   *ResumeRateCounter

	running    atomic.Bool
	terminated atomic.Bool

	refcount int64

	curMu sync.Mutex
	curCo *Coroutine

	workMu sync.Mutex
	work   []func()

	wakeCh     chan struct{}
	shutdownCh chan struct{}
	doneCh     chan struct{}
	doneOnce   sync.Once
}

// NewReactor constructs a Reactor from the given options.
func NewReactor(opts ...ReactorOption) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		scheduler:  NewScheduler(cfg.scheduler),
		registry:   newRegistry(),
		arena:      newArena(),
		logger:     cfg.logger,
		wakeCh:     make(chan struct{}, 1),
		shutdownCh: make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
	}

	if cfg.metricsEnabled {
		r.metrics = &Metrics{}
		r.rateCtr = NewResumeRateCounter(10*time.Second, time.Second)
	}

	r.scheduler.setWaker(r.wake)
	return r, nil
}

// Arena returns the Reactor's deep-copy allocator, used by adapters to
// move transient result data out of a producer callback's buffers.
func (r *Reactor) Arena() *Arena { return r.arena }

// Scheduler returns the Reactor's ready-queue scheduler, used by
// [Promise.Complete] and by adapters constructing their own promises.
func (r *Reactor) Scheduler() *Scheduler { return r.scheduler }

// Metrics returns the Reactor's metrics collector, or nil if the Reactor
// was built without [WithMetrics](true).
func (r *Reactor) Metrics() *Metrics { return r.metrics }

// LiveHandles reports how many Coroutine handles the registry currently
// believes are live.
func (r *Reactor) LiveHandles() int { return r.registry.Live() }

// QueueWork defers fn to run on the Reactor's own tick goroutine, before
// the next Scheduler.Tick. This is the "queue work" primitive adapters use
// to delay submitting their underlying operation until after the awaiting
// coroutine has reached its yield point (spec.md §4.D's first-resume
// scheduling nuance).
func (r *Reactor) QueueWork(fn func()) error {
	if fn == nil {
		return wrapErr(InvalidArgument, nil, "QueueWork requires a non-nil fn")
	}
	r.workMu.Lock()
	r.work = append(r.work, fn)
	r.workMu.Unlock()
	r.wake()
	return nil
}

// Ref increments the Reactor's pin count, preventing Run from exiting due
// to an empty ready queue while an external producer callback may still be
// in flight. Always paired with a later Unref.
func (r *Reactor) Ref() { atomic.AddInt64(&r.refcount, 1) }

// Unref decrements the Reactor's pin count.
func (r *Reactor) Unref() { atomic.AddInt64(&r.refcount, -1) }

func (r *Reactor) current() *Coroutine {
	r.curMu.Lock()
	defer r.curMu.Unlock()
	return r.curCo
}

func (r *Reactor) setCurrent(c *Coroutine) *Coroutine {
	r.curMu.Lock()
	prev := r.curCo
	r.curCo = c
	r.curMu.Unlock()
	return prev
}

func (r *Reactor) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *Reactor) drainWork() {
	r.workMu.Lock()
	work := r.work
	r.work = nil
	r.workMu.Unlock()

	for _, fn := range work {
		r.safeExecute(fn)
	}
}

func (r *Reactor) workEmpty() bool {
	r.workMu.Lock()
	defer r.workMu.Unlock()
	return len(r.work) == 0
}

func (r *Reactor) safeExecute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			LogError(r.logger, "reactor", "queued work panicked", nil, map[string]interface{}{"panic": rec})
		}
	}()
	fn()
}

// Tick drains any deferred work queued via QueueWork, then runs one
// Scheduler.Tick, recording metrics if enabled and scavenging a batch of
// the handle registry. It is the step Run calls in a loop, and returns
// [ErrReactorNotRunning] unless Run is active.
func (r *Reactor) Tick() (resumed int, err error) {
	if !r.running.Load() {
		return 0, ErrReactorNotRunning
	}
	if r.terminated.Load() {
		return 0, ErrReactorTerminated
	}

	r.drainWork()

	start := time.Now()
	n, err := r.scheduler.Tick()
	elapsed := time.Since(start)

	if r.metrics != nil && n > 0 {
		r.metrics.ResumeLatency.Record(elapsed / time.Duration(n))
		r.metrics.ResumeLatency.Sample()
		r.metrics.Queue.update(r.scheduler.ReadyCount())
		for i := 0; i < n; i++ {
			r.rateCtr.Increment()
		}
		r.metrics.mu.Lock()
		r.metrics.ResumeRate = r.rateCtr.Rate()
		r.metrics.mu.Unlock()
	}

	r.registry.Scavenge(32)
	return n, err
}

// Run drives the Reactor until ctx is cancelled, Shutdown is called, or
// there is no more work to do (ready queue empty, deferred-work queue
// empty, and refcount at zero). It must not be called re-entrantly from a
// coroutine running on this Reactor.
func (r *Reactor) Run(ctx context.Context) error {
	if r.current() != nil {
		return ErrReentrantRun
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrReactorAlreadyRunning
	}
	defer func() {
		r.running.Store(false)
		r.doneOnce.Do(func() { close(r.doneCh) })
	}()

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.shutdownCh:
			return nil
		default:
		}

		if r.terminated.Load() {
			return ErrReactorTerminated
		}

		n, err := r.Tick()
		if err != nil {
			return err
		}

		if n == 0 && r.workEmpty() {
			if atomic.LoadInt64(&r.refcount) <= 0 && r.scheduler.Empty() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.shutdownCh:
				return nil
			case <-r.wakeCh:
			case <-ticker.C:
			}
		}
	}
}

// Shutdown requests that a running Run loop stop, then waits for it to
// return or ctx to expire, whichever comes first. Shutdown is safe to call
// even if Run is not currently active.
func (r *Reactor) Shutdown(ctx context.Context) error {
	r.terminated.Store(true)
	select {
	case r.shutdownCh <- struct{}{}:
	default:
	}
	r.wake()

	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
