// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package attendee models a remote participant: one peer's data channel
// and media channel bound into a single entity with its own pose state,
// audio binding, and disconnect signal.
package attendee

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntheticmagus/manifold-meeting-space/audio"
	"github.com/syntheticmagus/manifold-meeting-space/lib/event"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/peer"
	"github.com/syntheticmagus/manifold-meeting-space/pose"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// Options configures a RemoteAttendee. Every field is optional.
type Options struct {
	// Sink plays the attendee's audio. Nil leaves remote streams
	// unbound.
	Sink audio.Sink

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// RemoteAttendee is one paired peer.
type RemoteAttendee struct {
	id      transport.Identity
	data    *peer.DataChannel
	media   *peer.MediaChannel
	sink    audio.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	disconnected *event.Latch
	poses        event.Observable[pose.State]

	dataHandle      *event.Observer
	streamHandle    *event.Observer
	dataTerminated  *event.Observer
	mediaTerminated *event.Observer

	mu       sync.Mutex
	state    pose.State
	binding  audio.Binding
	disposed bool
}

// New binds data and media, which must belong to the same peer. The
// media channel may still be connecting; its streams are bound as they
// arrive.
func New(data *peer.DataChannel, media *peer.MediaChannel, options Options) *RemoteAttendee {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	a := &RemoteAttendee{
		id:           data.Peer(),
		data:         data,
		media:        media,
		sink:         options.Sink,
		logger:       options.Logger.With("peer", string(data.Peer())),
		metrics:      options.Metrics,
		disconnected: event.NewLatch(),
	}
	if media.Peer() != a.id {
		a.logger.Warn("pairing channels of different peers", "media_peer", string(media.Peer()))
	}

	a.dataHandle = data.OnData().Add(a.handlePayload)
	a.streamHandle = media.AddStreamObserver(a.handleStream)
	a.dataTerminated = data.Terminated().Add(func() { a.disconnect("data") })
	a.mediaTerminated = media.Terminated().Add(func() { a.disconnect("media") })
	return a
}

// ID returns the peer identity.
func (a *RemoteAttendee) ID() transport.Identity { return a.id }

// Data returns the data channel.
func (a *RemoteAttendee) Data() *peer.DataChannel { return a.data }

// Media returns the media channel.
func (a *RemoteAttendee) Media() *peer.MediaChannel { return a.media }

// OnDisconnected fires once, the first time either channel terminates.
// Dispose does not fire it.
func (a *RemoteAttendee) OnDisconnected() event.Signal { return a.disconnected }

// OnPose publishes a snapshot after every applied transform message.
func (a *RemoteAttendee) OnPose() event.Source[pose.State] { return &a.poses }

// Pose returns the current displayable pose.
func (a *RemoteAttendee) Pose() pose.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// SendMessage serializes message and sends it on the data channel. A
// channel that is not open drops it with peer.ErrChannelNotOpen.
func (a *RemoteAttendee) SendMessage(message pose.Message) error {
	payload, err := pose.Marshal(message)
	if err != nil {
		return err
	}
	return a.Send(payload)
}

// Send forwards an already-encoded payload.
func (a *RemoteAttendee) Send(payload []byte) error {
	if err := a.data.Send(payload); err != nil {
		if errors.Is(err, peer.ErrChannelNotOpen) {
			a.metrics.MessageDropped()
		}
		return fmt.Errorf("attendee %s: %w", a.id, err)
	}
	a.metrics.MessageSent()
	return nil
}

// Dispose unsubscribes from both channels, closes them, and releases the
// audio binding. Idempotent.
func (a *RemoteAttendee) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	binding := a.binding
	a.binding = nil
	a.mu.Unlock()

	a.data.OnData().Remove(a.dataHandle)
	a.media.RemoveStreamObserver(a.streamHandle)
	a.data.Terminated().Remove(a.dataTerminated)
	a.media.Terminated().Remove(a.mediaTerminated)
	a.poses.Clear()

	a.data.Close()
	a.media.Close()
	if binding != nil {
		binding.Release()
	}
	a.logger.Debug("remote attendee disposed")
}

func (a *RemoteAttendee) handlePayload(payload []byte) {
	message, err := pose.Parse(payload)
	if err != nil {
		a.metrics.MessageMalformed()
		a.logger.Debug("dropping malformed payload", "error", err, "bytes", len(payload))
		return
	}

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.state.Apply(message)
	snapshot := a.state.Clone()
	a.mu.Unlock()

	a.metrics.MessageReceived()
	a.poses.Notify(snapshot)
}

// handleStream replaces the audio binding. Stream deliveries from one
// media channel are serialized, so at most one swap runs at a time.
func (a *RemoteAttendee) handleStream(stream transport.RemoteStream) {
	if a.sink == nil {
		return
	}

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	previous := a.binding
	a.binding = nil
	a.mu.Unlock()

	if previous != nil {
		previous.Release()
	}
	binding := a.sink.Bind(a.id, stream)

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		binding.Release()
		return
	}
	a.binding = binding
	a.mu.Unlock()
	a.logger.Debug("audio stream bound", "stream", stream.ID())
}

func (a *RemoteAttendee) disconnect(channel string) {
	if a.disconnected.Fire() {
		a.logger.Info("remote attendee disconnected", "channel", channel)
	}
}
