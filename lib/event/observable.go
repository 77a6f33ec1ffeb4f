// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "sync"

// Observer is a registration handle returned by Observable.Add and
// Latch.Add. Pass it to Remove to unsubscribe.
type Observer struct {
	id   uint64
	once bool
}

// Observable is a typed multi-subscriber event source. The zero value
// is ready to use.
type Observable[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	observers []observerEntry[T]
}

type observerEntry[T any] struct {
	handle   *Observer
	callback func(T)
}

// Add registers callback and returns its handle. Callbacks run in
// registration order.
func (o *Observable[T]) Add(callback func(T)) *Observer {
	return o.add(callback, false)
}

// AddOnce registers callback for the next notification only.
func (o *Observable[T]) AddOnce(callback func(T)) *Observer {
	return o.add(callback, true)
}

func (o *Observable[T]) add(callback func(T), once bool) *Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	handle := &Observer{id: o.nextID, once: once}
	o.observers = append(o.observers, observerEntry[T]{handle: handle, callback: callback})
	return handle
}

// Remove unregisters an observer. Returns false if the handle was nil or
// not registered (already removed, or a once-observer that fired).
func (o *Observable[T]) Remove(handle *Observer) bool {
	if handle == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for index, entry := range o.observers {
		if entry.handle == handle {
			o.observers = append(o.observers[:index:index], o.observers[index+1:]...)
			return true
		}
	}
	return false
}

// Notify delivers value to every registered observer. The observer list
// is snapshotted first, so observers added during delivery see only
// later notifications.
func (o *Observable[T]) Notify(value T) {
	o.mu.Lock()
	snapshot := make([]observerEntry[T], len(o.observers))
	copy(snapshot, o.observers)
	if len(snapshot) > 0 {
		kept := o.observers[:0:0]
		for _, entry := range o.observers {
			if !entry.handle.once {
				kept = append(kept, entry)
			}
		}
		o.observers = kept
	}
	o.mu.Unlock()

	for _, entry := range snapshot {
		entry.callback(value)
	}
}

// Clear removes every observer.
func (o *Observable[T]) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = nil
}

// Len returns the number of registered observers.
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observers)
}
