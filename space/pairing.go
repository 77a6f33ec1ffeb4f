// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"context"
	"errors"
	"fmt"

	"github.com/syntheticmagus/manifold-meeting-space/attendee"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/peer"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

const (
	directionOutbound = "outbound"
	directionInbound  = "inbound"
)

var (
	errDataClosed = errors.New("data channel closed before the call arrived")
	errGlare      = errors.New("peer connected to us concurrently and keeps the joiner role")
)

// closeUnclaimedMedia closes a matched call nobody will pair. Caller has
// already removed p from the pending table.
func (p *pairing) closeUnclaimedMedia() {
	if p.media == nil {
		return
	}
	select {
	case media := <-p.media:
		media.Close()
	default:
	}
}

// startOutbound begins the joiner side of a pairing with id unless the
// peer is already paired or pairing.
func (c *Controller) startOutbound(generation uint64, session *peer.Session, stream transport.LocalStream, id transport.Identity) {
	c.mu.Lock()
	if !c.liveLocked(generation) {
		c.mu.Unlock()
		return
	}
	if _, paired := c.attendees[id]; paired || c.pending[id] != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.lifetime)
	p := &pairing{
		peer:     id,
		outbound: true,
		media:    make(chan *peer.MediaChannel, 1),
		cancel:   cancel,
	}
	c.pending[id] = p
	c.mu.Unlock()

	c.metrics.PairingStarted(directionOutbound)
	go c.pairOutbound(ctx, generation, session, stream, p)
}

// pairOutbound connects the data channel, waits for the peer's call,
// and answers it with local audio.
func (c *Controller) pairOutbound(ctx context.Context, generation uint64, session *peer.Session, stream transport.LocalStream, p *pairing) {
	defer p.cancel()

	data, err := session.ConnectData(ctx, p.peer)
	if err != nil {
		c.abandon(p, err)
		return
	}
	c.logger.Debug("data channel open, awaiting call", "peer", string(p.peer))

	var media *peer.MediaChannel
	select {
	case media = <-p.media:
	case <-data.Terminated().Done():
		c.abandon(p, errDataClosed)
		return
	case <-c.clock.After(c.pairingTimeout):
		data.Close()
		c.abandon(p, fmt.Errorf("%w: no call from %s within %s", peer.ErrConnectTimeout, p.peer, c.pairingTimeout))
		return
	case <-ctx.Done():
		data.Close()
		c.abandon(p, ctx.Err())
		return
	}

	if err := media.Answer(stream); err != nil {
		data.Close()
		media.Close()
		c.abandon(p, err)
		return
	}
	c.register(generation, p, data, media)
}

// handleIncomingData runs the receiver side: call the peer back and pair
// at once, without waiting for the call to open.
func (c *Controller) handleIncomingData(generation uint64, session *peer.Session, stream transport.LocalStream, data *peer.DataChannel) {
	id := data.Peer()
	localID := session.ID()

	c.mu.Lock()
	if !c.liveLocked(generation) {
		c.mu.Unlock()
		data.Close()
		return
	}
	if _, paired := c.attendees[id]; paired {
		c.mu.Unlock()
		c.logger.Debug("closing duplicate data channel", "peer", string(id))
		data.Close()
		return
	}
	var yielded *pairing
	if existing := c.pending[id]; existing != nil {
		if !existing.outbound || localID < id {
			c.mu.Unlock()
			c.logger.Debug("keeping our own pairing", "peer", string(id))
			data.Close()
			return
		}
		yielded = existing
		delete(c.pending, id)
	}
	p := &pairing{peer: id, cancel: func() {}}
	c.pending[id] = p
	c.mu.Unlock()

	if yielded != nil {
		yielded.cancel()
		yielded.closeUnclaimedMedia()
		c.metrics.PairingFailed(metrics.ReasonGlare)
		c.logger.Debug("yielding joiner role", "peer", string(id), "reason", errGlare)
	}

	c.metrics.PairingStarted(directionInbound)
	media, err := session.CallMedia(id, stream)
	if err != nil {
		data.Close()
		c.abandon(p, err)
		return
	}
	c.register(generation, p, data, media)
}

// handleIncomingMedia hands a call to the outbound pairing waiting for
// it. Only the first call per pairing matches; others are closed.
func (c *Controller) handleIncomingMedia(generation uint64, media *peer.MediaChannel) {
	id := media.Peer()

	c.mu.Lock()
	p := c.pending[id]
	matched := c.liveLocked(generation) && p != nil && p.outbound && !p.matched
	if matched {
		p.matched = true
		// Capacity one and matched once, so this never blocks. Sending
		// under mu lets abandon drain it after removing p.
		p.media <- media
	}
	c.mu.Unlock()

	if !matched {
		c.logger.Debug("closing unsolicited call", "peer", string(id))
		media.Close()
	}
}

// register builds the attendee if p still owns its pending entry and the
// join is live. Otherwise the channels are closed.
func (c *Controller) register(generation uint64, p *pairing, data *peer.DataChannel, media *peer.MediaChannel) {
	a := attendee.New(data, media, attendee.Options{
		Sink:    c.sink,
		Logger:  c.logger,
		Metrics: c.metrics,
	})

	c.mu.Lock()
	owned := c.pending[p.peer] == p
	if owned {
		delete(c.pending, p.peer)
	}
	_, duplicate := c.attendees[p.peer]
	accepted := owned && !duplicate && c.liveLocked(generation)
	if accepted {
		c.attendees[p.peer] = a
	}
	c.mu.Unlock()

	if !accepted {
		a.Dispose()
		if owned {
			c.metrics.PairingFailed(metrics.ReasonLeft)
		}
		return
	}

	direction := directionInbound
	if p.outbound {
		direction = directionOutbound
	}
	c.metrics.AttendeeJoined()
	c.logger.Info("remote attendee joined", "peer", string(p.peer), "direction", direction)
	c.joined.Notify(a)
	a.OnDisconnected().Add(func() { c.removeAttendee(p.peer, a) })
}

// abandon records a failed pairing if p still owns its pending entry.
func (c *Controller) abandon(p *pairing, err error) {
	c.mu.Lock()
	owned := c.pending[p.peer] == p
	if owned {
		delete(c.pending, p.peer)
	}
	c.mu.Unlock()
	if !owned {
		return
	}
	p.closeUnclaimedMedia()

	reason := failureReason(err)
	c.metrics.PairingFailed(reason)
	if reason == metrics.ReasonLeft {
		c.logger.Debug("pairing cancelled", "peer", string(p.peer))
		return
	}
	c.logger.Warn("pairing failed", "peer", string(p.peer), "reason", reason, "error", err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, peer.ErrConnectTimeout):
		return metrics.ReasonTimeout
	case errors.Is(err, peer.ErrPeerUnreachable):
		return metrics.ReasonUnreachable
	case errors.Is(err, context.Canceled), errors.Is(err, peer.ErrSessionDisposed):
		return metrics.ReasonLeft
	default:
		return metrics.ReasonClosed
	}
}

// removeAttendee drops a disconnected attendee if it is still the one
// registered for id.
func (c *Controller) removeAttendee(id transport.Identity, a *attendee.RemoteAttendee) {
	c.mu.Lock()
	if c.attendees[id] != a {
		c.mu.Unlock()
		return
	}
	delete(c.attendees, id)
	c.mu.Unlock()

	a.Dispose()
	c.metrics.AttendeeLeft()
	c.logger.Info("remote attendee left", "peer", string(id))
	c.left.Notify(a)
}
