package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_FiresOnceAndRemovesEntry(t *testing.T) {
	var r Registry
	var calls atomic.Int32
	done := make(chan struct{})

	r.Schedule("a", 10*time.Millisecond, func() {
		calls.Add(1)
		close(done)
	})
	if !r.Has("a") {
		t.Fatal("Has(a) = false, want true before firing")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if r.Has("a") || r.Len() != 0 {
		t.Fatalf("registry still holds a after firing: len=%d", r.Len())
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestRegistry_CancelPreventsFire(t *testing.T) {
	var r Registry
	var calls atomic.Int32

	r.Schedule("a", 20*time.Millisecond, func() { calls.Add(1) })
	if !r.Cancel("a") {
		t.Fatal("Cancel(a) = false, want true")
	}
	if r.Cancel("a") {
		t.Fatal("second Cancel(a) = true, want false")
	}

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", calls.Load())
	}
}

func TestRegistry_RescheduleKeepsSingleTimer(t *testing.T) {
	var r Registry
	var first, second atomic.Int32
	done := make(chan struct{})

	r.Schedule("a", 20*time.Millisecond, func() { first.Add(1) })
	r.Schedule("a", 30*time.Millisecond, func() {
		second.Add(1)
		close(done)
	})
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer did not fire")
	}
	time.Sleep(20 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first.Load(), second.Load())
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	var r Registry
	var calls atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		r.Schedule(id, 20*time.Millisecond, func() { calls.Add(1) })
	}
	if got := len(r.Keys()); got != 3 {
		t.Fatalf("Keys = %d, want 3", got)
	}

	r.CancelAll()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 || r.Len() != 0 {
		t.Fatalf("calls=%d len=%d, want 0 and 0", calls.Load(), r.Len())
	}
}
