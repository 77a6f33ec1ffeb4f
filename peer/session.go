// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/lib/event"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// DefaultConnectTimeout bounds ConnectData when Options leaves it zero.
const DefaultConnectTimeout = 10 * time.Second

// Options configures a Session. Zero fields take defaults.
type Options struct {
	Clock          clock.Clock
	Logger         *slog.Logger
	ConnectTimeout time.Duration
}

// Session owns the local endpoint and every channel derived from it.
// It is single-use: once disposed it cannot be reopened.
type Session struct {
	endpoint       transport.Endpoint
	clock          clock.Clock
	logger         *slog.Logger
	connectTimeout time.Duration

	incomingData  event.Observable[*DataChannel]
	incomingMedia event.Observable[*MediaChannel]

	mu       sync.Mutex
	disposed bool
	channels map[closer]struct{}
}

type closer interface{ Close() }

// Create opens an endpoint and waits for its identity. Any failure is
// wrapped in ErrTransportInit.
func Create(ctx context.Context, open transport.Opener, options Options) (*Session, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}

	endpoint, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportInit, err)
	}

	session := &Session{
		endpoint:       endpoint,
		clock:          options.Clock,
		logger:         options.Logger.With("local", string(endpoint.ID())),
		connectTimeout: options.ConnectTimeout,
		channels:       make(map[closer]struct{}),
	}
	endpoint.OnConnection(session.handleConnection)
	endpoint.OnCall(session.handleCall)
	session.logger.Info("peer session created")
	return session, nil
}

// ID returns the local identity.
func (s *Session) ID() transport.Identity { return s.endpoint.ID() }

// IncomingData publishes data channels opened by remote peers, once
// they are open.
func (s *Session) IncomingData() event.Source[*DataChannel] { return &s.incomingData }

// IncomingMedia publishes calls from remote peers as soon as they
// arrive. The call carries media only after MediaChannel.Answer.
func (s *Session) IncomingMedia() event.Source[*MediaChannel] { return &s.incomingMedia }

// ConnectData opens a data channel to peer and waits until it is open.
// It fails with ErrConnectTimeout when the channel does not open within
// the connect timeout, and with ErrPeerUnreachable when the link fails
// or closes first.
func (s *Session) ConnectData(ctx context.Context, peer transport.Identity) (*DataChannel, error) {
	if s.isDisposed() {
		return nil, ErrSessionDisposed
	}
	link, err := s.endpoint.Connect(peer)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, fmt.Errorf("%w: %w", ErrSessionDisposed, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer, err)
	}
	channel := newDataChannel(link, s.logger)
	if !s.adopt(channel, channel.Terminated()) {
		return nil, ErrSessionDisposed
	}

	deadline := s.clock.After(s.connectTimeout)
	select {
	case <-channel.Opened().Done():
		return channel, nil
	case <-channel.Terminated().Done():
		// Opened may have raced with termination.
		if channel.Opened().Fired() {
			return channel, nil
		}
		if cause := channel.Err(); cause != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer, cause)
		}
		return nil, fmt.Errorf("%w: %s closed the connection before it opened", ErrPeerUnreachable, peer)
	case <-deadline:
		channel.Close()
		return nil, fmt.Errorf("%w: data channel to %s did not open within %s", ErrConnectTimeout, peer, s.connectTimeout)
	case <-ctx.Done():
		channel.Close()
		return nil, ctx.Err()
	}
}

// CallMedia calls peer with stream and returns at once with the channel
// still connecting.
func (s *Session) CallMedia(peer transport.Identity, stream transport.LocalStream) (*MediaChannel, error) {
	if s.isDisposed() {
		return nil, ErrSessionDisposed
	}
	link, err := s.endpoint.Call(peer, stream)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, fmt.Errorf("%w: %w", ErrSessionDisposed, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer, err)
	}
	channel := newMediaChannel(link, s.logger)
	if !s.adopt(channel, channel.Terminated()) {
		return nil, ErrSessionDisposed
	}
	return channel, nil
}

// Dispose closes every channel and then the endpoint. Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	channels := make([]closer, 0, len(s.channels))
	for channel := range s.channels {
		channels = append(channels, channel)
	}
	s.channels = nil
	s.mu.Unlock()

	s.incomingData.Clear()
	s.incomingMedia.Clear()
	for _, channel := range channels {
		channel.Close()
	}
	if err := s.endpoint.Close(); err != nil {
		s.logger.Warn("closing endpoint", "error", err)
	}
	s.logger.Info("peer session disposed", "channels", len(channels))
}

func (s *Session) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// adopt tracks channel until it terminates. When the session is already
// disposed the channel is closed and adopt returns false.
func (s *Session) adopt(channel closer, terminated event.Signal) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		channel.Close()
		return false
	}
	s.channels[channel] = struct{}{}
	s.mu.Unlock()

	terminated.Add(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.channels != nil {
			delete(s.channels, channel)
		}
	})
	return true
}

func (s *Session) handleConnection(link transport.DataLink) {
	channel := newDataChannel(link, s.logger)
	if !s.adopt(channel, channel.Terminated()) {
		return
	}
	s.logger.Debug("inbound data connection", "peer", string(link.Peer()))
	channel.Opened().Add(func() {
		if s.isDisposed() {
			return
		}
		s.incomingData.Notify(channel)
	})
}

func (s *Session) handleCall(link transport.MediaLink) {
	channel := newMediaChannel(link, s.logger)
	if !s.adopt(channel, channel.Terminated()) {
		return
	}
	s.logger.Debug("inbound call", "peer", string(link.Peer()))
	s.incomingMedia.Notify(channel)
}
