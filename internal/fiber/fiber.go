// Package fiber implements the stackful context-switch primitive a
// [Coroutine] is built on: two goroutines handing control back and forth
// over a pair of unbuffered channels, so that exactly one of them runs at
// any given instant.
//
// A true stackful coroutine swaps CPU register state and a raw memory
// stack directly, with no OS or runtime involvement. Go offers no portable,
// safe way to do that: goroutine stacks are moved by the garbage collector
// and their layout is a runtime implementation detail, so splicing a
// hand-rolled stack under one is not an option. This package instead gives
// every Fiber its own goroutine and uses a channel handshake to simulate
// the switch - the goroutine backing a suspended Fiber is parked on a
// channel receive, which costs nothing but a descriptor in the Go
// scheduler's run queue.
package fiber

import "fmt"

// Fiber is a single context-switchable execution backed by its own
// goroutine. The zero value is not usable; construct with [New].
type Fiber struct {
	resumeCh chan any
	yieldCh  chan yieldMsg

	started  bool
	finished bool
	panicVal any
}

type yieldMsg struct {
	value any
	done  bool
	panic any
}

// EntryFunc is the function a Fiber runs. arg is the value passed to the
// first Resume call. yield suspends the Fiber with a value, returning only
// once the Fiber is resumed again, with the value passed to that Resume
// call. EntryFunc's return value becomes the final result delivered by the
// Resume call that observes completion.
type EntryFunc func(arg any, yield func(any) any) any

// New creates a Fiber and starts its backing goroutine. The goroutine
// blocks immediately, waiting for the first Resume; fn does not begin
// executing until then.
func New(fn EntryFunc) *Fiber {
	f := &Fiber{
		resumeCh: make(chan any),
		yieldCh:  make(chan yieldMsg),
	}

	go func() {
		arg := <-f.resumeCh

		yield := func(v any) any {
			f.yieldCh <- yieldMsg{value: v}
			return <-f.resumeCh
		}

		var result any
		var panicVal any
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicVal = r
				}
			}()
			result = fn(arg, yield)
		}()

		f.yieldCh <- yieldMsg{value: result, done: true, panic: panicVal}
	}()

	return f
}

// Resume transfers control to the Fiber, passing arg to the pending yield
// call (or, for the first Resume, as fn's arg). It blocks until the Fiber
// yields or its entry function returns.
//
// alive reports whether the Fiber is still suspendable (true) or has run to
// completion (false). Once alive is false, value holds the entry
// function's return value, and Err reports whether it got there by
// panicking. Calling Resume again after alive is false panics.
func (f *Fiber) Resume(arg any) (value any, alive bool) {
	if f.finished {
		panic("fiber: Resume called on a finished Fiber")
	}
	f.started = true

	f.resumeCh <- arg
	msg := <-f.yieldCh

	if msg.done {
		f.finished = true
		f.panicVal = msg.panic
		return msg.value, false
	}
	return msg.value, true
}

// Err returns the panic value recovered from the Fiber's entry function, or
// nil if it returned normally (or hasn't finished yet).
func (f *Fiber) Err() error {
	if f.panicVal == nil {
		return nil
	}
	if err, ok := f.panicVal.(error); ok {
		return err
	}
	return fmt.Errorf("fiber: panic: %v", f.panicVal)
}

// Finished reports whether the Fiber's entry function has returned or
// panicked.
func (f *Fiber) Finished() bool { return f.finished }

// Started reports whether Resume has been called at least once.
func (f *Fiber) Started() bool { return f.started }
