// Package adapter implements the await-able-operation contract from
// spec.md §4.F on top of the core stackloop types: allocate a promise,
// defer submission of the underlying callback-driven operation to the
// reactor's next tick, await the result, then tear the promise down.
//
// Deferring submission (via [stackloop.Reactor.QueueWork]) is what makes
// the "operation completes before the coroutine reaches await" race
// impossible rather than merely rare: the awaiting coroutine always yields
// before the operation is even started.
package adapter

import (
	"fmt"

	"github.com/joeycumines/stackloop"
)

// Run drives co through the five-step adapter contract for a single
// callback-based operation returning a T. submit is called once, on the
// reactor's tick goroutine, with a complete closure: calling complete with
// status 0 fulfills the awaited result with value; any non-zero status or
// non-nil err rejects it. complete may be called from any goroutine,
// including one owned by a third-party driver with no relationship to the
// reactor.
func Run[T any](co *stackloop.Coroutine, submit func(complete func(status int, value T, err error))) (T, error) {
	var zero T

	r := co.Reactor()
	p := stackloop.NewPromise(r.Scheduler())

	if err := r.QueueWork(func() {
		submit(func(status int, value T, err error) {
			if status != 0 || err != nil {
				_ = p.Complete(nil, rejectionError(status, err))
				return
			}
			_ = p.Complete(value, nil)
		})
	}); err != nil {
		return zero, err
	}

	result, err := co.Await(p)
	_ = p.Destroy()

	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	v, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("adapter: unexpected result type %T", result)
	}
	return v, nil
}

func rejectionError(status int, err error) error {
	if err != nil {
		return fmt.Errorf("adapter: operation failed (status %d): %w", status, err)
	}
	return fmt.Errorf("adapter: operation failed with status %d", status)
}
