// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "sync"

// Latch is a fire-once signal. The zero value is not usable; create one
// with NewLatch.
type Latch struct {
	mu        sync.Mutex
	fired     bool
	done      chan struct{}
	observers Observable[struct{}]
}

// NewLatch returns an unfired latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Fire trips the latch and notifies observers. Only the first call has
// any effect; it returns true, every later call returns false.
func (l *Latch) Fire() bool {
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		return false
	}
	l.fired = true
	close(l.done)
	l.mu.Unlock()

	l.observers.Notify(struct{}{})
	l.observers.Clear()
	return true
}

// Fired reports whether Fire has been called.
func (l *Latch) Fired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}

// Done returns a channel that is closed when the latch fires.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Add registers callback to run when the latch fires. If the latch has
// already fired, callback runs synchronously before Add returns and the
// returned handle is nil.
func (l *Latch) Add(callback func()) *Observer {
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		callback()
		return nil
	}
	handle := l.observers.AddOnce(func(struct{}) { callback() })
	l.mu.Unlock()
	return handle
}

// Remove unregisters a callback added with Add. A nil handle is ignored.
func (l *Latch) Remove(handle *Observer) bool {
	return l.observers.Remove(handle)
}
