// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"errors"

	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/peer"
	"github.com/syntheticmagus/manifold-meeting-space/pose"
)

func (c *Controller) broadcastLoop(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.broadcast()
		}
	}
}

// broadcast sends the local pose to a snapshot of the attendees. A
// disconnect fired by a send removes that attendee from the map, not
// from the snapshot being iterated.
func (c *Controller) broadcast() {
	message := c.pose.Current()
	if message == nil {
		return
	}
	payload, err := pose.Marshal(message)
	if err != nil {
		c.logger.Warn("encoding local pose", "error", err)
		return
	}

	for _, a := range c.Attendees() {
		if err := a.Send(payload); err != nil {
			if errors.Is(err, peer.ErrChannelNotOpen) {
				continue
			}
			c.logger.Debug("pose send failed", "peer", string(a.ID()), "error", err)
		}
	}
}
