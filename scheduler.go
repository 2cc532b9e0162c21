package stackloop

import "sync"

// SchedulerStats reports a Scheduler's lifetime counters, per spec.md
// §4.E's stats() operation.
type SchedulerStats struct {
	CurrentReady   int
	PeakReady      int
	TotalScheduled int64
	TotalResumed   int64
	TotalDropped   int64
}

// Scheduler is a bounded FIFO ready queue of [Coroutine] handles awaiting
// resumption, per spec.md §4.E. Schedule enqueues; Tick dequeues up to a
// fixed per-call budget and resumes each in enqueue order.
type Scheduler struct {
	cfg   SchedulerConfig
	queue readyQueue

	mu             sync.Mutex
	peakReady      int
	totalScheduled int64
	totalResumed   int64
	totalDropped   int64

	// wake, if set, is called after every successful Schedule so the owning
	// Reactor's Run loop can stop idling instead of waiting for its next
	// poll interval.
	wake func()
}

// setWaker installs the callback invoked after each successful Schedule.
func (s *Scheduler) setWaker(fn func()) { s.wake = fn }

// NewScheduler creates a Scheduler from cfg.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.MaxResumePerTick <= 0 {
		cfg.MaxResumePerTick = DefaultSchedulerConfig().MaxResumePerTick
	}
	if cfg.ReadyQueueCapacity <= 0 {
		cfg.ReadyQueueCapacity = DefaultSchedulerConfig().ReadyQueueCapacity
	}
	return &Scheduler{
		cfg:   cfg,
		queue: newReadyQueue(cfg),
	}
}

// Schedule enqueues c for resumption. Safe to call from any goroutine when
// the Scheduler is configured with [QueueKindMPSC] (the default); callers
// using [QueueKindSPSC] must only call Schedule from the Reactor's own tick
// goroutine.
func (s *Scheduler) Schedule(c *Coroutine) error {
	if !s.queue.push(c) {
		s.mu.Lock()
		s.totalDropped++
		s.mu.Unlock()
		return wrapErr(SchedulerFull, nil, "scheduler ready queue at capacity (%d)", s.cfg.ReadyQueueCapacity)
	}

	s.mu.Lock()
	s.totalScheduled++
	if depth := s.queue.length(); depth > s.peakReady {
		s.peakReady = depth
	}
	s.mu.Unlock()

	if s.wake != nil {
		s.wake()
	}
	return nil
}

// Tick dequeues up to MaxResumePerTick ready coroutines and calls Resume on
// each in FIFO order. If cfg.ResumeRateLimit is set, Tick additionally
// stops early once the limiter has no tokens left, leaving the remainder
// queued for a later tick. A coroutine whose Resume call fails (already
// completed, concurrently destroyed) is dropped without consuming budget.
//
// Coroutines scheduled by a resume that happens during this Tick (re-entrant
// scheduling) land at the tail of the queue and are only observed by a
// subsequent Tick, bounding this call's latency.
func (s *Scheduler) Tick() (resumed int, err error) {
	// Only entries already queued when Tick starts are eligible.
	pending := s.queue.length()
	for i := 0; i < s.cfg.MaxResumePerTick && pending > 0; i++ {
		if s.cfg.ResumeRateLimit != nil && !s.cfg.ResumeRateLimit.Allow() {
			break
		}

		c, ok := s.queue.pop()
		if !ok {
			break
		}
		pending--

		if _, rerr := c.Resume(nil); rerr != nil {
			s.mu.Lock()
			s.totalDropped++
			s.mu.Unlock()
			i--
			continue
		}

		resumed++
		s.mu.Lock()
		s.totalResumed++
		s.mu.Unlock()
	}
	return resumed, nil
}

// ReadyCount returns the current ready-queue depth.
func (s *Scheduler) ReadyCount() int { return s.queue.length() }

// Empty reports whether the ready queue currently holds no coroutines.
func (s *Scheduler) Empty() bool { return s.queue.length() == 0 }

// Stats returns a snapshot of the scheduler's lifetime counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		CurrentReady:   s.queue.length(),
		PeakReady:      s.peakReady,
		TotalScheduled: s.totalScheduled,
		TotalResumed:   s.totalResumed,
		TotalDropped:   s.totalDropped,
	}
}
