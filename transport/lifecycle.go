// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

type lifecycleState int

const (
	lifecycleConnecting lifecycleState = iota
	lifecycleOpen
	lifecycleClosed
)

// Lifecycle tracks a link's connecting/open/closed progression and the
// open, error, and close handlers, replaying past events to handlers
// registered late. Link implementations embed it. Handlers are always
// invoked without the internal lock held.
type Lifecycle struct {
	mu      sync.Mutex
	state   lifecycleState
	err     error
	onOpen  func()
	onClose func()
	onError func(error)
}

// SetOnOpen sets the open handler, calling it now if the link is open.
func (l *Lifecycle) SetOnOpen(handler func()) {
	l.mu.Lock()
	l.onOpen = handler
	replay := l.state == lifecycleOpen
	l.mu.Unlock()
	if replay && handler != nil {
		handler()
	}
}

// SetOnClose sets the close handler, calling it now if the link is
// closed.
func (l *Lifecycle) SetOnClose(handler func()) {
	l.mu.Lock()
	l.onClose = handler
	replay := l.state == lifecycleClosed
	l.mu.Unlock()
	if replay && handler != nil {
		handler()
	}
}

// SetOnError sets the error handler, calling it now if the link already
// failed.
func (l *Lifecycle) SetOnError(handler func(error)) {
	l.mu.Lock()
	l.onError = handler
	err := l.err
	l.mu.Unlock()
	if err != nil && handler != nil {
		handler(err)
	}
}

// MarkOpen moves a connecting link to open. Returns false if the link
// was not connecting.
func (l *Lifecycle) MarkOpen() bool {
	l.mu.Lock()
	if l.state != lifecycleConnecting {
		l.mu.Unlock()
		return false
	}
	l.state = lifecycleOpen
	handler := l.onOpen
	l.mu.Unlock()
	if handler != nil {
		handler()
	}
	return true
}

// Fail records err, reports it, and closes the link. Only the first
// termination (Fail or MarkClosed) has any effect.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	if l.state == lifecycleClosed {
		l.mu.Unlock()
		return false
	}
	l.err = err
	handler := l.onError
	l.mu.Unlock()
	if handler != nil {
		handler(err)
	}
	return l.MarkClosed()
}

// MarkClosed moves the link to closed and calls the close handler.
// Returns false if it was already closed.
func (l *Lifecycle) MarkClosed() bool {
	l.mu.Lock()
	if l.state == lifecycleClosed {
		l.mu.Unlock()
		return false
	}
	l.state = lifecycleClosed
	handler := l.onClose
	l.mu.Unlock()
	if handler != nil {
		handler()
	}
	return true
}

// IsOpen reports whether the link is open.
func (l *Lifecycle) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == lifecycleOpen
}

// IsClosed reports whether the link has terminated.
func (l *Lifecycle) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == lifecycleClosed
}

// maxInboxBacklog bounds what an Inbox holds before a handler is set.
const maxInboxBacklog = 256

// Inbox delivers values to a handler, buffering them until one is set.
// Once the backlog is full, the oldest buffered value is discarded.
type Inbox[T any] struct {
	mu      sync.Mutex
	handler func(T)
	backlog []T
}

// SetHandler installs handler and flushes the backlog to it.
func (i *Inbox[T]) SetHandler(handler func(T)) {
	i.mu.Lock()
	i.handler = handler
	backlog := i.backlog
	i.backlog = nil
	i.mu.Unlock()
	if handler == nil {
		return
	}
	for _, value := range backlog {
		handler(value)
	}
}

// Deliver passes value to the handler, or buffers it.
func (i *Inbox[T]) Deliver(value T) {
	i.mu.Lock()
	handler := i.handler
	if handler == nil {
		if len(i.backlog) == maxInboxBacklog {
			i.backlog = i.backlog[1:]
		}
		i.backlog = append(i.backlog, value)
	}
	i.mu.Unlock()
	if handler != nil {
		handler(value)
	}
}
