package stackloop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/stackloop"
)

func TestScheduler_FIFOOrdering(t *testing.T) {
	r := newTestReactor(t)
	var order []int

	makeCo := func(i int) *stackloop.Coroutine {
		co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
			order = append(order, i)
			return nil
		})
		require.NoError(t, err)
		return co
	}

	for i := 0; i < 5; i++ {
		co := makeCo(i)
		require.NoError(t, r.Scheduler().Schedule(co))
	}

	n, err := r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

// Scheduler batching: a per-tick resume budget bounds how many coroutines a
// single Tick call resumes, leaving the remainder for the next Tick.
func TestScheduler_BatchingRespectsMaxResumePerTick(t *testing.T) {
	cfg := stackloop.DefaultSchedulerConfig()
	cfg.MaxResumePerTick = 3
	r, err := stackloop.NewReactor(stackloop.WithSchedulerConfig(cfg))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, r.Scheduler().Schedule(co))
	}

	n1, err := r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 3, n1)

	n2, err := r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 3, n2)

	require.Equal(t, 4, r.Scheduler().ReadyCount())
}

func TestScheduler_ReEntrantScheduleLandsNextTick(t *testing.T) {
	r := newTestReactor(t)
	var ran []int

	var second *stackloop.Coroutine
	second, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		ran = append(ran, 2)
		return nil
	})
	require.NoError(t, err)

	first, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any {
		ran = append(ran, 1)
		require.NoError(t, r.Scheduler().Schedule(second))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Scheduler().Schedule(first))

	n, err := r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int{1}, ran)

	n, err = r.Scheduler().Tick()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int{1, 2}, ran)
}

func TestScheduler_FullQueueRejectsSchedule(t *testing.T) {
	cfg := stackloop.DefaultSchedulerConfig()
	cfg.ReadyQueueCapacity = 2
	cfg.QueueKind = stackloop.QueueKindSPSC
	r, err := stackloop.NewReactor(stackloop.WithSchedulerConfig(cfg))
	require.NoError(t, err)

	newCo := func() *stackloop.Coroutine {
		co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any { return nil })
		require.NoError(t, err)
		return co
	}

	require.NoError(t, r.Scheduler().Schedule(newCo()))
	require.NoError(t, r.Scheduler().Schedule(newCo()))
	require.Error(t, r.Scheduler().Schedule(newCo()))
}

// The MPSC ring queue is the default (DefaultSchedulerConfig's QueueKind),
// and must reject pushes past capacity exactly like the SPSC queue does,
// rather than spilling into unbounded overflow.
func TestScheduler_FullQueueRejectsScheduleOnDefaultMPSCQueue(t *testing.T) {
	cfg := stackloop.DefaultSchedulerConfig()
	cfg.ReadyQueueCapacity = 2
	require.Equal(t, stackloop.QueueKindMPSC, cfg.QueueKind)
	r, err := stackloop.NewReactor(stackloop.WithSchedulerConfig(cfg))
	require.NoError(t, err)

	newCo := func() *stackloop.Coroutine {
		co, err := stackloop.NewCoroutine(r, stackloop.DefaultCoroutineConfig(), func(co *stackloop.Coroutine) any { return nil })
		require.NoError(t, err)
		return co
	}

	require.NoError(t, r.Scheduler().Schedule(newCo()))
	require.NoError(t, r.Scheduler().Schedule(newCo()))
	err = r.Scheduler().Schedule(newCo())
	require.Error(t, err)
	require.ErrorIs(t, err, stackloop.ErrSchedulerFull)
}
