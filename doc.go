// Package stackloop implements a stackful coroutine runtime on top of a
// cooperative, single-threaded reactor, so that asynchronous, callback-
// driven operations can be awaited with ordinary sequential code instead
// of nested completion handlers.
//
// # Architecture
//
// A [Reactor] owns a [Scheduler] (a bounded FIFO ready queue of resumable
// [Coroutine] handles) and a handle registry that detects leaked, never-
// destroyed coroutines. Exactly one goroutine - the one running
// [Reactor.Run], which calls [Reactor.Tick] in a loop - ever resumes a
// coroutine belonging to that Reactor; this is what lets coroutine bodies
// run as ordinary, non-reentrant sequential code even though the reactor as
// a whole is driven by arbitrarily many producer goroutines completing
// [Promise] values concurrently.
//
// Go provides no portable way to hand-roll a register-swap context switch,
// so [Coroutine] is built on internal/fiber, which approximates a stackful
// coroutine with a dedicated goroutine parked on a channel handshake
// instead of a raw stack swap - the same technique used by reference
// coroutine libraries such as tcard/coro.
//
// # Usage
//
//	reactor, _ := stackloop.NewReactor()
//	co, _ := stackloop.NewCoroutine(reactor, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
//		co.Yield("halfway")
//		return "done"
//	})
//	co.Resume(nil) // -> "halfway", runs until the first Yield
//	co.Resume(nil) // -> "done", entry function returns
//
// To await a callback-based operation, a [Promise] bridges the producer's
// completion callback and the awaiting coroutine:
//
//	p := stackloop.NewPromise(reactor.Scheduler())
//	go func() {
//		result := doSomethingAsync()
//		p.Complete(result, nil)
//	}()
//	value, err := co.Await(p)
//
// The stackloop/adapter subpackage packages this pattern into a single
// generic call for any callback-based operation; see its illustrative
// adapters for DNS resolution, filesystem watching, WebSocket round trips,
// and SQL queries.
//
// # Thread Safety
//
//   - [Scheduler.Schedule] is safe to call from any goroutine when the
//     Scheduler is configured with [QueueKindMPSC] (the default); this is
//     what lets an adapter's completion callback, running on a goroutine
//     owned by a third-party driver, resolve a Promise directly.
//   - [Coroutine.Resume] must only ever be called from the owning
//     Reactor's own tick goroutine.
//   - [Pool.Acquire]/[Pool.Release]/[Pool.Warmup]/[Pool.Shrink]/[Pool.Stats]
//     take an internal mutex only when [PoolConfig.ThreadSafe] is set.
package stackloop
