package stackloop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/stackloop"
)

func newTestReactor(t *testing.T) *stackloop.Reactor {
	t.Helper()
	r, err := stackloop.NewReactor()
	require.NoError(t, err)
	return r
}

// Basic run-to-completion: entry writes a value and returns without
// yielding.
func TestCoroutine_BasicRunToCompletion(t *testing.T) {
	r := newTestReactor(t)
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		return 42
	})
	require.NoError(t, err)
	require.Equal(t, stackloop.StateReady, co.State())

	value, err := co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.Equal(t, stackloop.StateCompleted, co.State())

	_, err = co.Resume(nil)
	require.Error(t, err)
}

// Yield ladder: increments a counter, yields, increments, yields,
// increments, returns. Resuming three times should observe all three
// increments in order.
func TestCoroutine_YieldLadder(t *testing.T) {
	r := newTestReactor(t)
	counter := 0
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		counter++
		co.Yield(counter)
		counter++
		co.Yield(counter)
		counter++
		return counter
	})
	require.NoError(t, err)

	v1, err := co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, 1, v1)
	require.Equal(t, stackloop.StateSuspended, co.State())

	v2, err := co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, 2, v2)

	v3, err := co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, 3, v3)
	require.Equal(t, stackloop.StateCompleted, co.State())
}

func TestCoroutine_YieldFromNonCurrentFails(t *testing.T) {
	r := newTestReactor(t)
	var inner *stackloop.Coroutine
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		inner = co
		return nil
	})
	require.NoError(t, err)
	_, err = co.Resume(nil)
	require.NoError(t, err)

	_, err = inner.Yield(nil)
	require.Error(t, err)
}

func TestCoroutine_PanicSurfacesAsErrored(t *testing.T) {
	r := newTestReactor(t)
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = co.Resume(nil)
	require.Error(t, err)
	require.Equal(t, stackloop.StateErrored, co.State())
}

// Await round-trip: await(p) returns the exact value passed to Complete.
func TestCoroutine_AwaitRoundTrip(t *testing.T) {
	r := newTestReactor(t)
	p := stackloop.NewPromise(r.Scheduler())

	result := make(chan any, 1)
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		value, err := co.Await(p)
		require.NoError(t, err)
		result <- value
		return value
	})
	require.NoError(t, err)

	_, err = co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, stackloop.StateSuspended, co.State())

	require.NoError(t, p.Complete("hello", nil))

	n, err := r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "hello", <-result)
	require.Equal(t, stackloop.StateCompleted, co.State())
}

func TestCoroutine_AwaitFastPathWhenAlreadyCompleted(t *testing.T) {
	r := newTestReactor(t)
	p := stackloop.NewPromise(r.Scheduler())
	require.NoError(t, p.Complete("already-done", nil))

	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		value, err := co.Await(p)
		require.NoError(t, err)
		return value
	})
	require.NoError(t, err)

	value, err := co.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, "already-done", value)
	require.Equal(t, stackloop.StateCompleted, co.State())
}

func TestCoroutine_PooledCoroutinesReuseWorkers(t *testing.T) {
	r := newTestReactor(t)
	pool, err := stackloop.NewPool(stackloop.PoolConfig{
		StackSize:     stackloop.DefaultStackSize,
		InitialCount:  4,
		UseGuardPages: false,
	})
	require.NoError(t, err)

	cfg := stackloop.CoroutineConfig{UsePool: true, Pool: pool}

	for i := 0; i < 100; i++ {
		co, err := stackloop.NewCoroutine(r, cfg, func(co *stackloop.Coroutine) any {
			return i
		})
		require.NoError(t, err)

		value, err := co.Resume(nil)
		require.NoError(t, err)
		require.Equal(t, i, value)
		require.NoError(t, co.Destroy())
	}

	stats := pool.Stats()
	require.Equal(t, int64(100), stats.Acquired)
	require.Equal(t, int64(100), stats.Released)
	require.LessOrEqual(t, stats.Created, 100)
}
