package stackloop

import (
	"sync"

	"github.com/joeycumines/stackloop/internal/fiber"
)

// EntryFunc is the body of a [Coroutine]. It receives the Coroutine itself,
// so it can call co.Yield/co.Await, and returns the coroutine's final
// result. A panic inside EntryFunc is recovered and surfaces as
// [StateErrored] plus an [IllegalState] error from the Resume call that
// observes it.
type EntryFunc func(co *Coroutine) any

// fiberLike is satisfied by both [fiber.Fiber] (unpooled) and pooledFiber
// (pool-backed), letting Coroutine drive either without caring which.
type fiberLike interface {
	Resume(arg any) (value any, alive bool)
	Err() error
	Finished() bool
}

// Coroutine is a single stackful coroutine: a cooperatively-scheduled unit
// of execution that can suspend itself mid-call via Yield or Await and be
// resumed later from exactly where it left off, per spec.md §4.D.
//
// A Coroutine is bound to the [Reactor] that created it for its entire
// lifetime: Resume must only ever be called from that Reactor's own tick
// goroutine, and Yield/Await must only be called by the coroutine currently
// running on it.
type Coroutine struct { // betteralign:ignore
	reactor    *Reactor
	cfg        CoroutineConfig
	state      *fastState
	registryID uint64

	fiber   fiberLike
	slot    *poolSlot
	yieldFn func(any) any

	mu        sync.Mutex
	wakeValue any
	wakeErr   error
}

// NewCoroutine creates a Coroutine bound to reactor, in [StateReady]. If
// cfg.UsePool is set, its backing worker goroutine is acquired from
// cfg.Pool; otherwise a fresh one is spawned via [fiber.New].
func NewCoroutine(reactor *Reactor, cfg CoroutineConfig, entry EntryFunc) (*Coroutine, error) {
	if reactor == nil {
		return nil, wrapErr(InvalidArgument, nil, "reactor must not be nil")
	}
	if entry == nil {
		return nil, wrapErr(InvalidArgument, nil, "entry function must not be nil")
	}

	co := &Coroutine{
		reactor: reactor,
		cfg:     cfg,
		state:   newFastState(),
	}

	wrapped := func(arg any, yield func(any) any) any {
		co.yieldFn = yield
		return entry(co)
	}

	if cfg.UsePool {
		if cfg.Pool == nil {
			return nil, wrapErr(InvalidArgument, nil, "CoroutineConfig.UsePool requires a non-nil Pool")
		}
		slot, err := cfg.Pool.Acquire()
		if err != nil {
			return nil, err
		}
		slot.worker.assign(wrapped)
		co.slot = slot
		co.fiber = slot.worker
	} else {
		size := cfg.StackSize
		if size == 0 {
			size = DefaultStackSize
		}
		if size < MinStackSize || size > MaxStackSize {
			return nil, wrapErr(InvalidArgument, nil, "stack size %d out of range [%d, %d]", size, MinStackSize, MaxStackSize)
		}
		co.fiber = fiber.New(wrapped)
	}

	co.registryID = reactor.registry.register(co)
	return co, nil
}

// State returns the coroutine's current lifecycle state.
func (co *Coroutine) State() CoroutineState { return co.state.Load() }

// Reactor returns the Reactor this coroutine is bound to, for adapters that
// need its Scheduler or QueueWork primitive.
func (co *Coroutine) Reactor() *Reactor { return co.reactor }

// Resume transfers control to the coroutine. It may only be called when the
// coroutine is [StateReady] or [StateSuspended], and only from the owning
// Reactor's own tick goroutine. It returns once the coroutine yields,
// awaits, completes, or panics.
func (co *Coroutine) Resume(arg any) (any, error) {
	st := co.state.Load()
	if st != StateReady && st != StateSuspended {
		return nil, wrapErr(IllegalState, nil, "cannot resume coroutine in state %s", st)
	}
	if !co.state.TryTransition(st, StateRunning) {
		return nil, wrapErr(IllegalState, nil, "coroutine state changed concurrently with resume")
	}

	prev := co.reactor.setCurrent(co)
	value, alive := co.fiber.Resume(arg)
	co.reactor.setCurrent(prev)

	if !alive {
		if fe := co.fiber.Err(); fe != nil {
			co.state.Store(StateErrored)
			return nil, wrapErr(IllegalState, fe, "coroutine entry panicked")
		}
		co.state.Store(StateCompleted)
		return value, nil
	}

	// Yield/Await already transitioned the state to StateSuspended from
	// inside the coroutine's own goroutine before control returned here.
	return value, nil
}

// Yield suspends the calling coroutine, handing value back to whichever
// Resume call is waiting for it. It returns once the coroutine is resumed
// again, with the argument passed to that Resume call.
func (co *Coroutine) Yield(value any) (any, error) {
	if co.reactor.current() != co {
		return nil, wrapErr(IllegalState, nil, "yield called from a non-current coroutine")
	}
	if co.yieldFn == nil {
		return nil, wrapErr(IllegalState, nil, "yield called before the coroutine has started")
	}
	co.state.Store(StateSuspended)
	return co.yieldFn(value), nil
}

// Await suspends the calling coroutine until p settles, returning p's
// result. If p has already settled, Await returns immediately without
// yielding (the fast path described in spec.md §4.C/§4.D).
//
// While suspended in Await, the owning Reactor is ref-counted up so that it
// cannot be torn down while a producer's completion callback is still
// in-flight; the ref is released as soon as this coroutine is resumed.
func (co *Coroutine) Await(p *Promise) (any, error) {
	if co.reactor.current() != co {
		return nil, wrapErr(IllegalState, nil, "await called from a non-current coroutine")
	}
	if p == nil {
		return nil, wrapErr(InvalidArgument, nil, "await requires a non-nil promise")
	}

	if value, err, ok := p.registerWaiter(co); ok {
		return value, err
	}

	co.reactor.Ref()
	co.state.Store(StateSuspended)
	co.yieldFn(nil)
	co.reactor.Unref()

	co.mu.Lock()
	value, err := co.wakeValue, co.wakeErr
	co.wakeValue, co.wakeErr = nil, nil
	co.mu.Unlock()
	return value, err
}

// wakeFromPromise records p's settled result so the next Resume's Await
// call can pick it up. Called by Promise.Complete, possibly from a
// goroutine that has nothing to do with this Reactor.
func (co *Coroutine) wakeFromPromise(p *Promise) {
	value, err := p.result()
	co.mu.Lock()
	co.wakeValue, co.wakeErr = value, err
	co.mu.Unlock()
}

// Destroy tears down the coroutine. It is an error to call Destroy while
// the coroutine is [StateRunning]. If the coroutine was pool-backed, its
// worker goroutine is returned to the pool rather than terminated.
func (co *Coroutine) Destroy() error {
	if co.state.Load() == StateRunning {
		return wrapErr(IllegalState, nil, "cannot destroy a running coroutine")
	}
	if co.slot != nil {
		co.cfg.Pool.Release(co.slot)
		co.slot = nil
	}
	return nil
}
