package stackloop

import (
	"sync"
	"sync/atomic"
)

// PromiseStatus represents the lifecycle state of a [Promise]. A promise
// starts Pending and transitions exactly once to either Fulfilled or
// Rejected.
type PromiseStatus int32

const (
	// PromisePending indicates the operation has not yet completed.
	PromisePending PromiseStatus = iota

	// PromiseFulfilled indicates Complete was called with a nil error.
	PromiseFulfilled

	// PromiseRejected indicates Complete was called with a non-nil error.
	PromiseRejected
)

// String returns a human-readable representation of the status.
func (s PromiseStatus) String() string {
	switch s {
	case PromisePending:
		return "Pending"
	case PromiseFulfilled:
		return "Fulfilled"
	case PromiseRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Promise is a one-shot completion cell bridging a callback-based operation
// and a [Coroutine] awaiting its result. Unlike a Promise/A+ implementation,
// a Promise here has no Then/Catch chaining and no combinators: exactly one
// producer calls [Promise.Complete] exactly once, and at most one
// [Coroutine] calls [Coroutine.Await] on it to observe the outcome.
//
// Complete may be called from any goroutine - including a goroutine owned
// by a third-party driver outside the Reactor entirely - which is what lets
// an adapter resolve a Promise from its own completion callback. Await may
// only be called from the coroutine that owns it, and only once.
type Promise struct { // betteralign:ignore
	id uint64

	mu     sync.Mutex
	status atomic.Int32
	value  any
	err    error

	// waiter is the Coroutine blocked in Await, or nil if Await has not yet
	// been called (e.g. the operation completed before the coroutine asked
	// to wait on it).
	waiter *Coroutine

	// scheduler reschedules the waiter once Complete observes one.
	scheduler *Scheduler
}

var promiseIDCounter atomic.Uint64

// NewPromise creates a new pending Promise bound to the given Scheduler.
// The Scheduler is used to reschedule whichever Coroutine later calls
// [Coroutine.Await] on it once Complete runs.
func NewPromise(scheduler *Scheduler) *Promise {
	return &Promise{
		id:        promiseIDCounter.Add(1),
		scheduler: scheduler,
	}
}

// ID returns the Promise's unique identifier, for logging/diagnostics.
func (p *Promise) ID() uint64 { return p.id }

// Status returns the current PromiseStatus.
func (p *Promise) Status() PromiseStatus {
	return PromiseStatus(p.status.Load())
}

// Complete settles the promise with either a value (err == nil) or an
// error. Calling Complete on an already-settled Promise returns
// [ErrIllegalState] and has no other effect - the first call always wins.
//
// If a Coroutine is currently blocked in Await on this Promise, Complete
// hands the result to it and schedules it for resumption on the owning
// Reactor's tick loop. Complete never resumes the coroutine inline: doing
// so would let an adapter's callback goroutine run user coroutine code
// outside the Reactor's single-threaded tick, which is exactly what the
// deferred-start discipline exists to prevent.
func (p *Promise) Complete(value any, err error) error {
	p.mu.Lock()

	if !p.status.CompareAndSwap(int32(PromisePending), int32(statusFor(err))) {
		p.mu.Unlock()
		return wrapErr(IllegalState, nil, "promise %d already completed", p.id)
	}

	p.value = value
	p.err = err
	waiter := p.waiter
	p.waiter = nil
	p.mu.Unlock()

	if waiter != nil {
		waiter.wakeFromPromise(p)
		if p.scheduler != nil {
			p.scheduler.Schedule(waiter)
		}
	}
	return nil
}

func statusFor(err error) PromiseStatus {
	if err != nil {
		return PromiseRejected
	}
	return PromiseFulfilled
}

// registerWaiter records c as the Coroutine that will observe this
// Promise's result once it settles. Called by Coroutine.Await. Returns the
// result immediately (ok=true) if the Promise has already settled.
func (p *Promise) registerWaiter(c *Coroutine) (value any, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if PromiseStatus(p.status.Load()) != PromisePending {
		return p.value, p.err, true
	}
	p.waiter = c
	return nil, nil, false
}

// result returns the settled value/error pair. Only valid once Status() is
// no longer Pending.
func (p *Promise) result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Destroy tears down the promise. It is only safe to call once Status() is
// no longer Pending and no coroutine is currently registered as a waiter;
// calling it otherwise returns [ErrIllegalState]. Go's garbage collector
// reclaims the Promise's memory on its own, so Destroy exists to check the
// usage contract rather than to free anything.
func (p *Promise) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if PromiseStatus(p.status.Load()) == PromisePending {
		return wrapErr(IllegalState, nil, "cannot destroy promise %d: still pending", p.id)
	}
	if p.waiter != nil {
		return wrapErr(IllegalState, nil, "cannot destroy promise %d: waiter still registered", p.id)
	}
	return nil
}
