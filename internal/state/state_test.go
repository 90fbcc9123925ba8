package state

import (
	"sync"
	"testing"
)

func TestAtom_SetNotifiesSubscribersInOrder(t *testing.T) {
	a := NewAtom(1)

	var got []string
	a.Subscribe(func(v int) { got = append(got, "first") })
	a.Subscribe(func(v int) { got = append(got, "second") })

	a.Set(2)
	if a.Get() != 2 {
		t.Fatalf("Get = %d, want 2", a.Get())
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("notification order = %v, want [first second]", got)
	}
}

func TestAtom_UnsubscribeStopsNotifications(t *testing.T) {
	a := NewAtom("a")

	calls := 0
	unsub := a.Subscribe(func(string) { calls++ })
	a.Set("b")
	unsub()
	unsub() // second call is a no-op
	a.Set("c")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if a.Listeners() != 0 {
		t.Fatalf("Listeners = %d, want 0", a.Listeners())
	}
}

func TestAtom_UpdateIsAtomic(t *testing.T) {
	a := NewAtom(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	if a.Get() != 100 {
		t.Fatalf("Get = %d, want 100", a.Get())
	}
}

func TestAtom_SubscriberMayWriteOtherAtoms(t *testing.T) {
	src := NewAtom(0)
	mirror := NewAtom(0)
	src.Subscribe(func(v int) { mirror.Set(v * 10) })

	src.Set(4)
	if mirror.Get() != 40 {
		t.Fatalf("mirror = %d, want 40", mirror.Get())
	}
}

func TestDerive_RecomputesOnEveryDependency(t *testing.T) {
	a := NewAtom(2)
	b := NewAtom(3)
	sum := Derive2(a, b, func(x, y int) int { return x + y })

	if sum.Get() != 5 {
		t.Fatalf("initial sum = %d, want 5", sum.Get())
	}
	a.Set(10)
	if sum.Get() != 13 {
		t.Fatalf("sum after a = %d, want 13", sum.Get())
	}
	b.Set(0)
	if sum.Get() != 10 {
		t.Fatalf("sum after b = %d, want 10", sum.Get())
	}
}

func TestDerive_Chains(t *testing.T) {
	items := NewAtom([]int{1, 2, 3, 4})
	even := Derive(items, func(in []int) []int {
		var out []int
		for _, v := range in {
			if v%2 == 0 {
				out = append(out, v)
			}
		}
		return out
	})
	count := Derive(even, func(in []int) int { return len(in) })

	if count.Get() != 2 {
		t.Fatalf("count = %d, want 2", count.Get())
	}
	items.Set([]int{2, 4, 6})
	if count.Get() != 3 {
		t.Fatalf("count = %d, want 3", count.Get())
	}
}

func TestComputed_CloseDetaches(t *testing.T) {
	a := NewAtom(1)
	c := Derive(a, func(v int) int { return v })

	if a.Listeners() != 1 {
		t.Fatalf("Listeners = %d, want 1", a.Listeners())
	}
	c.Close()
	a.Set(9)

	if c.Get() != 1 {
		t.Fatalf("closed computed = %d, want 1", c.Get())
	}
	if a.Listeners() != 0 {
		t.Fatalf("Listeners after Close = %d, want 0", a.Listeners())
	}
}

func TestDeriveFunc_TracksAllSources(t *testing.T) {
	a := NewAtom("x")
	b := NewAtom(true)
	c := NewAtom(1)
	d := NewAtom(2.5)
	e := NewAtom([]string{"y"})

	joined := DeriveFunc(func() int {
		n := len(a.Get()) + c.Get() + int(d.Get()) + len(e.Get())
		if b.Get() {
			n++
		}
		return n
	}, On[string](a), On[bool](b), On[int](c), On[float64](d), On[[]string](e))

	if joined.Get() != 6 {
		t.Fatalf("joined = %d, want 6", joined.Get())
	}
	b.Set(false)
	e.Set(nil)
	if joined.Get() != 4 {
		t.Fatalf("joined = %d, want 4", joined.Get())
	}
}

func TestAtom_UpdateIfSkipsUnchanged(t *testing.T) {
	a := NewAtom(1)
	calls := 0
	a.Subscribe(func(int) { calls++ })

	if got, changed := a.UpdateIf(func(v int) (int, bool) { return v, false }); changed || got != 1 {
		t.Fatalf("UpdateIf = %d, %v; want 1, false", got, changed)
	}
	if got, changed := a.UpdateIf(func(v int) (int, bool) { return v + 1, true }); !changed || got != 2 {
		t.Fatalf("UpdateIf = %d, %v; want 2, true", got, changed)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWriteBack_FoldsTriggersDuringWrite(t *testing.T) {
	a := NewAtom(0)
	var written []int
	var wb *WriteBack[int]
	wb = NewWriteBack[int](a, func(v int) {
		written = append(written, v)
		if v == 1 {
			// Writes arriving mid-flight are folded into one rerun.
			a.Set(2)
			a.Set(3)
		}
	})
	detach := wb.Attach()
	defer detach()

	a.Set(1)
	if len(written) != 2 || written[0] != 1 || written[1] != 3 {
		t.Fatalf("written = %v, want [1 3]", written)
	}
}
