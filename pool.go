package stackloop

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/stackloop/internal/fiber"
)

// PoolStats reports a Pool's lifetime counters, per spec.md §4.B's stats()
// operation.
type PoolStats struct {
	Created   int
	Acquired  int64
	Released  int64
	FreeNow   int
	InUseNow  int
	PeakInUse int
	StackSize int
}

// poolSlot is one unit of pool reuse: a worker goroutine parked between
// assignments, plus (when guard pages are enabled) a mmap'd scratch region
// standing in for the raw stack memory a register-swap context would use.
type poolSlot struct {
	worker  *pooledFiber
	scratch []byte
	mapping []byte
}

// Pool amortizes coroutine startup cost by reusing worker goroutines (the
// pool's unit of reuse, playing the role of a pooled stack) across many
// Coroutine lifetimes, per spec.md §4.B.
type Pool struct {
	cfg PoolConfig

	mu   sync.Mutex
	free []*poolSlot

	created   int
	acquired  int64
	released  int64
	inUse     int
	peakInUse int
}

// NewPool creates a Pool from cfg, validating StackSize against
// [MinStackSize]/[MaxStackSize].
func NewPool(cfg PoolConfig) (*Pool, error) {
	size := cfg.StackSize
	if size == 0 {
		size = DefaultStackSize
		cfg.StackSize = size
	}
	if size < MinStackSize || size > MaxStackSize {
		return nil, wrapErr(InvalidArgument, nil, "pool stack size %d out of range [%d, %d]", size, MinStackSize, MaxStackSize)
	}
	p := &Pool{cfg: cfg}
	if cfg.InitialCount > 0 {
		if err := p.Warmup(cfg.InitialCount); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) lock() {
	if p.cfg.ThreadSafe {
		p.mu.Lock()
	}
}

func (p *Pool) unlock() {
	if p.cfg.ThreadSafe {
		p.mu.Unlock()
	}
}

// newSlot allocates one fresh slot: a parked worker goroutine plus, when
// UseGuardPages is set, a guard-paged scratch buffer. Caller must hold the
// pool lock if ThreadSafe.
func (p *Pool) newSlot() (*poolSlot, error) {
	slot := &poolSlot{worker: newPooledFiber()}

	if p.cfg.UseGuardPages {
		pageSize := unix.Getpagesize()
		total := p.cfg.StackSize + pageSize
		mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			slot.worker.exit()
			return nil, wrapErr(AllocationFailed, err, "mmap pool stack region")
		}
		if err := unix.Mprotect(mapping[:pageSize], unix.PROT_NONE); err != nil {
			_ = unix.Munmap(mapping)
			slot.worker.exit()
			return nil, wrapErr(AllocationFailed, err, "mprotect pool guard page")
		}
		slot.mapping = mapping
		slot.scratch = mapping[pageSize:]
	}

	p.created++
	return slot, nil
}

// Warmup pre-allocates n slots and pushes them onto the free list.
func (p *Pool) Warmup(n int) error {
	p.lock()
	defer p.unlock()

	for i := 0; i < n; i++ {
		if p.cfg.MaxCount > 0 && p.created >= p.cfg.MaxCount {
			break
		}
		slot, err := p.newSlot()
		if err != nil {
			return err
		}
		p.free = append(p.free, slot)
	}
	return nil
}

// Acquire pops an idle slot from the free list, or spawns a new one if the
// free list is empty and MaxCount permits it. Returns [ErrPoolExhausted] if
// MaxCount has been reached with no idle slot available.
func (p *Pool) Acquire() (*poolSlot, error) {
	p.lock()
	defer p.unlock()

	var slot *poolSlot
	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.cfg.MaxCount > 0 && p.created >= p.cfg.MaxCount {
			return nil, wrapErr(PoolExhausted, nil, "pool exhausted: %d slots created, MaxCount=%d", p.created, p.cfg.MaxCount)
		}
		var err error
		slot, err = p.newSlot()
		if err != nil {
			return nil, err
		}
	}

	p.inUse++
	p.acquired++
	if p.inUse > p.peakInUse {
		p.peakInUse = p.inUse
	}
	return slot, nil
}

// Release returns slot to the free list. The worker goroutine is parked,
// not terminated.
func (p *Pool) Release(slot *poolSlot) {
	p.lock()
	defer p.unlock()

	p.free = append(p.free, slot)
	p.inUse--
	p.released++
}

// Shrink pops slots from the back of the free list, down to keepN,
// terminating their worker goroutines and unmapping any guard-paged
// scratch buffer.
func (p *Pool) Shrink(keepN int) {
	p.lock()
	defer p.unlock()

	for len(p.free) > keepN {
		last := len(p.free) - 1
		slot := p.free[last]
		p.free = p.free[:last]

		slot.worker.exit()
		if slot.mapping != nil {
			_ = unix.Munmap(slot.mapping)
		}
		p.created--
	}
}

// Stats returns a snapshot of the pool's lifetime counters.
func (p *Pool) Stats() PoolStats {
	p.lock()
	defer p.unlock()

	return PoolStats{
		Created:   p.created,
		Acquired:  p.acquired,
		Released:  p.released,
		FreeNow:   len(p.free),
		InUseNow:  p.inUse,
		PeakInUse: p.peakInUse,
		StackSize: p.cfg.StackSize,
	}
}

// pooledFiber is the reusable analogue of [fiber.Fiber]: instead of its
// backing goroutine exiting once its entry function finishes, the
// goroutine loops, parking on assignCh for the next one. This is what lets
// Pool hand the same goroutine to many Coroutine lifetimes in turn, per
// spec.md §4.B's "release parks rather than frees" contract.
type pooledFiber struct {
	assignCh chan fiber.EntryFunc
	resumeCh chan any
	yieldCh  chan pooledYieldMsg

	finished bool
	panicVal any
}

type pooledYieldMsg struct {
	value any
	done  bool
	panic any
}

func newPooledFiber() *pooledFiber {
	f := &pooledFiber{
		assignCh: make(chan fiber.EntryFunc),
		resumeCh: make(chan any),
		yieldCh:  make(chan pooledYieldMsg),
	}
	go f.loop()
	return f
}

func (f *pooledFiber) loop() {
	for fn := range f.assignCh {
		arg := <-f.resumeCh

		yield := func(v any) any {
			f.yieldCh <- pooledYieldMsg{value: v}
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

		f.yieldCh <- pooledYieldMsg{value: result, done: true, panic: panicVal}
	}
}

// assign gives the worker a new entry function. Must only be called while
// the worker is parked between assignments (i.e. right after Acquire,
// before any Resume).
func (f *pooledFiber) assign(fn fiber.EntryFunc) {
	f.finished = false
	f.panicVal = nil
	f.assignCh <- fn
}

// Resume implements the same contract as [fiber.Fiber.Resume].
func (f *pooledFiber) Resume(arg any) (value any, alive bool) {
	if f.finished {
		panic("stackloop: Resume called on a finished pooled fiber")
	}
	f.resumeCh <- arg
	msg := <-f.yieldCh

	if msg.done {
		f.finished = true
		f.panicVal = msg.panic
		return msg.value, false
	}
	return msg.value, true
}

func (f *pooledFiber) Err() error {
	if f.panicVal == nil {
		return nil
	}
	if err, ok := f.panicVal.(error); ok {
		return err
	}
	return wrapErr(IllegalState, nil, "pooled fiber panic: %v", f.panicVal)
}

func (f *pooledFiber) Finished() bool { return f.finished }

// exit terminates the worker goroutine permanently. Called by Shrink.
func (f *pooledFiber) exit() { close(f.assignCh) }
