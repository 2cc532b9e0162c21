package fiber

import (
	"errors"
	"testing"
)

func TestNew_RunsToCompletionWithoutYielding(t *testing.T) {
	f := New(func(arg any, yield func(any) any) any {
		return arg.(int) * 2
	})
	value, alive := f.Resume(21)
	if alive {
		t.Fatalf("expected fiber to be finished after a single Resume")
	}
	if value != 42 {
		t.Fatalf("expected 42, got %v", value)
	}
	if !f.Finished() {
		t.Fatalf("expected Finished() true")
	}
}

func TestNew_YieldRoundTrip(t *testing.T) {
	f := New(func(arg any, yield func(any) any) any {
		got := yield(arg.(int) + 1)
		return got.(int) + 1
	})

	value, alive := f.Resume(10)
	if !alive {
		t.Fatalf("expected fiber to still be alive after first yield")
	}
	if value != 11 {
		t.Fatalf("expected 11, got %v", value)
	}

	value, alive = f.Resume(100)
	if alive {
		t.Fatalf("expected fiber to be finished after second Resume")
	}
	if value != 101 {
		t.Fatalf("expected 101, got %v", value)
	}
}

func TestNew_PanicIsRecoveredAndSurfacedViaErr(t *testing.T) {
	boom := errors.New("boom")
	f := New(func(arg any, yield func(any) any) any {
		panic(boom)
	})

	_, alive := f.Resume(nil)
	if alive {
		t.Fatalf("expected fiber to be finished after panic")
	}
	if !errors.Is(f.Err(), boom) {
		t.Fatalf("expected Err() to wrap %v, got %v", boom, f.Err())
	}
}

func TestFiber_ResumeAfterFinishedPanics(t *testing.T) {
	f := New(func(arg any, yield func(any) any) any { return nil })
	f.Resume(nil)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Resume on a finished Fiber to panic")
		}
	}()
	f.Resume(nil)
}

func TestFiber_StartedTracksFirstResume(t *testing.T) {
	f := New(func(arg any, yield func(any) any) any { return nil })
	if f.Started() {
		t.Fatalf("expected Started() false before any Resume")
	}
	f.Resume(nil)
	if !f.Started() {
		t.Fatalf("expected Started() true after Resume")
	}
}
