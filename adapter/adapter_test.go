package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/stackloop"
	"github.com/joeycumines/stackloop/adapter"
)

// TestRun_DeferredStartRace exercises the deferred-start discipline:
// submit must never run until the awaiting coroutine has already reached
// its yield point, even when the underlying operation completes
// synchronously inside submit (the classic source of a missed-wakeup bug).
// Run 1000+ times to make a reordering bug reliably surface as a hang or
// panic rather than an occasional flake.
func TestRun_DeferredStartRace(t *testing.T) {
	const iterations = 1000

	for i := 0; i < iterations; i++ {
		r, err := stackloop.NewReactor()
		require.NoError(t, err)

		result := make(chan int, 1)
		co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
			v, err := adapter.Run[int](co, func(complete func(status int, value int, err error)) {
				// Completes synchronously, before Run's caller has any
				// chance to observe that the coroutine is even suspended
				// yet - only safe because submit itself only runs after
				// the await's yield point via QueueWork.
				complete(0, i, nil)
			})
			require.NoError(t, err)
			result <- v
			return v
		})
		require.NoError(t, err)
		require.NoError(t, r.Scheduler().Schedule(co))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, r.Run(ctx))
		cancel()

		select {
		case v := <-result:
			require.Equal(t, i, v)
		default:
			t.Fatalf("iteration %d: coroutine never completed", i)
		}
	}
}

func TestRun_RejectsOnNonZeroStatus(t *testing.T) {
	r, err := stackloop.NewReactor()
	require.NoError(t, err)

	var gotErr error
	co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		_, err := adapter.Run[int](co, func(complete func(status int, value int, err error)) {
			complete(1, 0, nil)
		})
		gotErr = err
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Scheduler().Schedule(co))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	require.Error(t, gotErr)
}
