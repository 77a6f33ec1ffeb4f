// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntheticmagus/manifold-meeting-space/lib/event"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// State is a channel's position in its one-way lifecycle.
type State int

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// lifecycle is the state machine shared by data and media channels.
type lifecycle struct {
	peer   transport.Identity
	kind   transport.LinkKind
	logger *slog.Logger

	mu    sync.Mutex
	state State
	err   error

	opened     *event.Latch
	terminated *event.Latch
}

func (c *lifecycle) init(peer transport.Identity, kind transport.LinkKind, logger *slog.Logger) {
	c.peer = peer
	c.kind = kind
	c.logger = logger
	c.opened = event.NewLatch()
	c.terminated = event.NewLatch()
}

// Peer returns the remote identity.
func (c *lifecycle) Peer() transport.Identity { return c.peer }

// State returns the current state.
func (c *lifecycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that terminated the channel, or nil if it
// closed cleanly or is still live.
func (c *lifecycle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Opened fires once, when the channel first opens.
func (c *lifecycle) Opened() event.Signal { return c.opened }

// Terminated fires exactly once, when the channel closes for any reason.
func (c *lifecycle) Terminated() event.Signal { return c.terminated }

func (c *lifecycle) markOpen() {
	c.mu.Lock()
	if c.state != Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Open
	c.mu.Unlock()
	c.logger.Debug("channel open", "peer", string(c.peer), "kind", c.kind)
	c.opened.Fire()
}

func (c *lifecycle) terminate(err error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	c.err = err
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("channel error", "peer", string(c.peer), "kind", c.kind, "error", err)
	} else {
		c.logger.Debug("channel closed", "peer", string(c.peer), "kind", c.kind)
	}
	c.terminated.Fire()
}

// DataChannel carries pose payloads to and from one peer.
type DataChannel struct {
	lifecycle
	link transport.DataLink
	data event.Observable[[]byte]
}

func newDataChannel(link transport.DataLink, logger *slog.Logger) *DataChannel {
	channel := &DataChannel{link: link}
	channel.init(link.Peer(), transport.KindData, logger)
	link.OnMessage(channel.data.Notify)
	link.OnOpen(channel.markOpen)
	link.OnError(channel.terminate)
	link.OnClose(func() { channel.terminate(nil) })
	return channel
}

// OnData publishes every inbound payload.
func (c *DataChannel) OnData() event.Source[[]byte] { return &c.data }

// Send forwards payload to the peer. When the channel is not open the
// payload is dropped and ErrChannelNotOpen is returned.
func (c *DataChannel) Send(payload []byte) error {
	if state := c.State(); state != Open {
		return fmt.Errorf("%w: data channel to %s is %s", ErrChannelNotOpen, c.peer, state)
	}
	if err := c.link.Send(payload); err != nil {
		return fmt.Errorf("sending to %s: %w", c.peer, err)
	}
	return nil
}

// Close closes the link. Idempotent; Terminated fires on the first call
// if it had not already.
func (c *DataChannel) Close() {
	c.link.Close()
	c.terminate(nil)
}

// MediaChannel is one audio call with a peer.
type MediaChannel struct {
	lifecycle
	link transport.MediaLink

	// deliverMu serializes stream delivery against AddStreamObserver so
	// a late observer's replay can never land after a newer stream.
	deliverMu sync.Mutex
	current   transport.RemoteStream
	streams   event.Observable[transport.RemoteStream]
}

func newMediaChannel(link transport.MediaLink, logger *slog.Logger) *MediaChannel {
	channel := &MediaChannel{link: link}
	channel.init(link.Peer(), transport.KindMedia, logger)
	link.OnStream(channel.deliver)
	link.OnOpen(channel.markOpen)
	link.OnError(channel.terminate)
	link.OnClose(func() { channel.terminate(nil) })
	return channel
}

func (c *MediaChannel) deliver(stream transport.RemoteStream) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.current = stream
	c.streams.Notify(stream)
}

// AddStreamObserver subscribes to remote stream arrivals. Renegotiation
// can deliver more than one. If a stream already arrived, callback is
// invoked with the latest one before AddStreamObserver returns.
func (c *MediaChannel) AddStreamObserver(callback func(transport.RemoteStream)) *event.Observer {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	handle := c.streams.Add(callback)
	if c.current != nil {
		callback(c.current)
	}
	return handle
}

// RemoveStreamObserver unsubscribes a handle from AddStreamObserver.
func (c *MediaChannel) RemoveStreamObserver(handle *event.Observer) {
	c.streams.Remove(handle)
}

// Answer accepts an inbound call, sending stream back to the caller.
func (c *MediaChannel) Answer(stream transport.LocalStream) error {
	if err := c.link.Answer(stream); err != nil {
		return fmt.Errorf("answering call from %s: %w", c.peer, err)
	}
	return nil
}

// Close hangs up. Idempotent.
func (c *MediaChannel) Close() {
	c.link.Close()
	c.terminate(nil)
}
