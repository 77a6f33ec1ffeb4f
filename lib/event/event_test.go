// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"sync"
	"testing"
)

func TestObservableNotifiesInOrder(t *testing.T) {
	var observable Observable[int]
	var got []string
	observable.Add(func(value int) { got = append(got, "first") })
	observable.Add(func(value int) { got = append(got, "second") })

	observable.Notify(1)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("notification order = %v", got)
	}
}

func TestObservableRemove(t *testing.T) {
	var observable Observable[string]
	calls := 0
	handle := observable.Add(func(string) { calls++ })

	if !observable.Remove(handle) {
		t.Fatal("Remove of a registered observer returned false")
	}
	if observable.Remove(handle) {
		t.Fatal("second Remove returned true")
	}
	if observable.Remove(nil) {
		t.Fatal("Remove(nil) returned true")
	}
	observable.Notify("ignored")
	if calls != 0 {
		t.Fatalf("removed observer called %d times", calls)
	}
}

func TestObservableAddOnce(t *testing.T) {
	var observable Observable[int]
	var seen []int
	observable.AddOnce(func(value int) { seen = append(seen, value) })

	observable.Notify(1)
	observable.Notify(2)
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("once observer saw %v, want [1]", seen)
	}
	if observable.Len() != 0 {
		t.Fatalf("Len() = %d after once observer fired", observable.Len())
	}
}

func TestObservableSelfRemovalDuringNotify(t *testing.T) {
	var observable Observable[int]
	var handle *Observer
	calls := 0
	handle = observable.Add(func(int) {
		calls++
		observable.Remove(handle)
	})
	added := 0
	observable.Add(func(int) {
		// Observers added during delivery only see later notifications.
		observable.Add(func(int) { added++ })
	})

	observable.Notify(1)
	observable.Notify(2)
	if calls != 1 {
		t.Errorf("self-removing observer called %d times, want 1", calls)
	}
	if added != 1 {
		t.Errorf("observer added during first delivery called %d times, want 1", added)
	}
}

func TestLatchFiresOnce(t *testing.T) {
	latch := NewLatch()
	calls := 0
	latch.Add(func() { calls++ })

	if !latch.Fire() {
		t.Fatal("first Fire returned false")
	}
	if latch.Fire() {
		t.Fatal("second Fire returned true")
	}
	if calls != 1 {
		t.Fatalf("observer called %d times, want 1", calls)
	}
	select {
	case <-latch.Done():
	default:
		t.Fatal("Done not closed after Fire")
	}
}

func TestLatchLateObserverRunsImmediately(t *testing.T) {
	latch := NewLatch()
	latch.Fire()

	called := false
	if handle := latch.Add(func() { called = true }); handle != nil {
		t.Error("Add on a fired latch returned a handle")
	}
	if !called {
		t.Fatal("late observer not invoked")
	}
}

func TestLatchRemovedObserverNotCalled(t *testing.T) {
	latch := NewLatch()
	called := false
	handle := latch.Add(func() { called = true })
	latch.Remove(handle)
	latch.Fire()
	if called {
		t.Fatal("removed observer was invoked")
	}
}

func TestLatchConcurrentFire(t *testing.T) {
	latch := NewLatch()
	var mu sync.Mutex
	calls := 0
	latch.Add(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			latch.Fire()
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("observer called %d times under concurrent Fire, want 1", calls)
	}
}
