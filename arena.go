package stackloop

import "sync/atomic"

// Arena is the Reactor-owned allocator adapters use to copy transient
// result data (DNS records, database rows, protocol buffers) out of a
// producer callback's own buffers and into storage that outlives the
// callback, per spec.md §4.F's deep-copy discipline. Go's garbage collector
// does the actual memory management; Arena exists to give that discipline a
// single, countable point of contact rather than scattering ad-hoc
// allocations through every adapter.
type Arena struct {
	allocated atomic.Int64
	live      atomic.Int64
}

func newArena() *Arena { return &Arena{} }

// CopyBytes returns a freshly-allocated copy of b, safe to retain past the
// lifetime of whatever buffer b came from.
func (a *Arena) CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	a.allocated.Add(int64(len(out)))
	a.live.Add(1)
	return out
}

// CopySlice returns a freshly-allocated copy of s, element by element. Use
// this for adapter results (e.g. DNS records, SQL rows) backed by a buffer
// the producer may reuse or free once its callback returns.
func CopySlice[T any](a *Arena, s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	a.allocated.Add(int64(len(out)))
	a.live.Add(1)
	return out
}

// Allocated returns the cumulative number of bytes (or, for CopySlice,
// elements) this Arena has deep-copied since the Reactor was created.
func (a *Arena) Allocated() int64 { return a.allocated.Load() }

// Live returns the number of deep-copy allocations made so far. There is no
// corresponding free: the arena's storage is reclaimed by the Go garbage
// collector once the coroutine that received it drops its last reference.
func (a *Arena) Live() int64 { return a.live.Load() }
