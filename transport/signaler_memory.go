// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignalHub routes signaling messages between MemorySignalers in
// one process. Two WebRTCTransports opened on signalers from the same
// hub can negotiate links without a signaling server.
type MemorySignalHub struct {
	mu      sync.Mutex
	nextID  int
	members map[Identity]*MemorySignaler
}

// NewMemorySignalHub creates an empty hub.
func NewMemorySignalHub() *MemorySignalHub {
	return &MemorySignalHub{members: make(map[Identity]*MemorySignaler)}
}

// Signaler returns a signaler whose identity is assigned on Open.
func (h *MemorySignalHub) Signaler() *MemorySignaler {
	return &MemorySignaler{hub: h, mailbox: newMailbox()}
}

// SignalerWithID returns a signaler that registers as id on Open. Use it
// when a test needs a known ordering between identities.
func (h *MemorySignalHub) SignalerWithID(id Identity) *MemorySignaler {
	return &MemorySignaler{hub: h, requested: id, mailbox: newMailbox()}
}

func (h *MemorySignalHub) register(signaler *MemorySignaler) (Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := signaler.requested
	if id == "" {
		h.nextID++
		id = Identity(fmt.Sprintf("memory-%d", h.nextID))
	}
	if _, taken := h.members[id]; taken {
		return "", fmt.Errorf("memory signaler: identity %q already registered", id)
	}
	h.members[id] = signaler
	return id, nil
}

func (h *MemorySignalHub) unregister(id Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, id)
}

func (h *MemorySignalHub) route(message SignalMessage) {
	h.mu.Lock()
	destination := h.members[message.Destination]
	source := h.members[message.Source]
	h.mu.Unlock()

	if destination != nil {
		destination.mailbox.post(message)
		return
	}
	if source != nil && message.Type != SignalBye {
		source.mailbox.post(SignalMessage{
			Type:         SignalUnavailable,
			Source:       message.Destination,
			Destination:  message.Source,
			ConnectionID: message.ConnectionID,
			Kind:         message.Kind,
		})
	}
}

// MemorySignaler is one hub member.
type MemorySignaler struct {
	hub       *MemorySignalHub
	requested Identity
	mailbox   *mailbox

	mu     sync.Mutex
	id     Identity
	opened bool
}

// Open registers with the hub.
func (s *MemorySignaler) Open(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return s.id, nil
	}
	id, err := s.hub.register(s)
	if err != nil {
		return "", err
	}
	s.id, s.opened = id, true
	return id, nil
}

// Send routes message through the hub. Unknown destinations produce an
// unavailable reply.
func (s *MemorySignaler) Send(_ context.Context, message SignalMessage) error {
	s.mu.Lock()
	id, opened := s.id, s.opened
	s.mu.Unlock()
	if !opened {
		return fmt.Errorf("memory signaler: not open")
	}
	if s.mailbox.isClosed() {
		return ErrClosed
	}
	message.Source = id
	s.hub.route(message)
	return nil
}

// Messages returns the inbound message channel.
func (s *MemorySignaler) Messages() <-chan SignalMessage {
	return s.mailbox.output
}

// Close leaves the hub and closes Messages.
func (s *MemorySignaler) Close() error {
	s.mu.Lock()
	id, opened := s.id, s.opened
	s.mu.Unlock()
	if opened {
		s.hub.unregister(id)
	}
	s.mailbox.close()
	return nil
}

// mailbox is an unbounded queue drained into a channel so that routing
// never blocks on a slow receiver.
type mailbox struct {
	mu      sync.Mutex
	pending []SignalMessage
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	output  chan SignalMessage
}

func newMailbox() *mailbox {
	box := &mailbox{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		output: make(chan SignalMessage),
	}
	go box.pump()
	return box
}

func (m *mailbox) post(message SignalMessage) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, message)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mailbox) pump() {
	defer close(m.output)
	for {
		m.mu.Lock()
		var next *SignalMessage
		if len(m.pending) > 0 {
			next = &m.pending[0]
			m.pending = m.pending[1:]
		}
		m.mu.Unlock()

		if next == nil {
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		select {
		case m.output <- *next:
		case <-m.done:
			return
		}
	}
}
