package stackloop

import (
	"sync/atomic"
)

// CoroutineState represents the lifecycle state of a [Coroutine].
//
// State Machine:
//
//	StateReady (0)     -> StateRunning (1)     [Resume]
//	StateRunning (1)   -> StateSuspended (2)   [Yield / Await on a pending Promise]
//	StateRunning (1)   -> StateCompleted (3)   [entry function returns]
//	StateRunning (1)   -> StateErrored (4)     [entry function panics]
//	StateSuspended (2) -> StateRunning (1)     [Resume]
//
// StateCompleted and StateErrored are terminal: no further Resume is legal.
//
// State Transition Rules:
//   - Resume uses TryTransition (CAS) for the edges into StateRunning; a
//     failed CAS means the caller observed a stale state. The edges out of
//     StateRunning are written with Store by the running coroutine (or the
//     Resume call driving it), which is the only writer at that point.
//   - There is no edge back out of StateCompleted or StateErrored.
type CoroutineState uint32

const (
	// StateReady indicates the coroutine has been created but never
	// resumed.
	StateReady CoroutineState = iota

	// StateRunning indicates the coroutine is the one currently executing
	// on its Reactor's tick goroutine.
	StateRunning

	// StateSuspended indicates the coroutine yielded or is awaiting a
	// pending Promise.
	StateSuspended

	// StateCompleted indicates the entry function returned. Terminal.
	StateCompleted

	// StateErrored indicates the entry function panicked and the panic was
	// recovered by Resume. Terminal.
	StateErrored
)

// String returns a human-readable representation of the state.
func (s CoroutineState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateCompleted:
		return "Completed"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free atomic state machine backing Coroutine.state.
//
// PERFORMANCE: pure atomic CAS, no mutex.
type fastState struct {
	v atomic.Uint32
}

// newFastState creates a new state machine in StateReady.
func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateReady))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() CoroutineState {
	return CoroutineState(s.v.Load())
}

// Store atomically stores a new state, bypassing CAS validation. Coroutine
// uses it only for transitions out of StateRunning, where no other writer
// can race it.
func (s *fastState) Store(state CoroutineState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to
// another. Returns true if the transition succeeded.
func (s *fastState) TryTransition(from, to CoroutineState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal returns true if the state is StateCompleted or StateErrored.
func (s *fastState) IsTerminal() bool {
	st := s.Load()
	return st == StateCompleted || st == StateErrored
}
