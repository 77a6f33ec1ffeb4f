// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// frameDuration is one Opus packet.
const frameDuration = 20 * time.Millisecond

// opusSilence is the Opus TOC and payload for a 20ms silent frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceConfig configures a SilenceSource.
type SilenceConfig struct {
	// StreamID names the local stream. Defaults to "manifold-audio".
	StreamID string

	// Clock paces frames. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// SilenceSource is a Source that sends Opus silence every 20ms on one
// sample track shared by every call.
type SilenceSource struct {
	streamID string
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	stream *localStream
	stop   chan struct{}
	done   chan struct{}
}

// NewSilenceSource returns a stopped source. It may be started and
// stopped repeatedly; each Start creates a fresh track.
func NewSilenceSource(config SilenceConfig) *SilenceSource {
	if config.StreamID == "" {
		config.StreamID = "manifold-audio"
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &SilenceSource{
		streamID: config.StreamID,
		clock:    config.Clock,
		logger:   config.Logger,
	}
}

func (s *SilenceSource) Start(ctx context.Context) (transport.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return s.stream, nil
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", s.streamID)
	if err != nil {
		return nil, fmt.Errorf("creating audio track: %w", err)
	}
	s.stream = &localStream{id: s.streamID, track: track}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.pump(track, s.stop, s.done)
	s.logger.Info("local audio started", "stream", s.streamID)
	return s.stream, nil
}

func (s *SilenceSource) Stop() {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.stream, s.stop, s.done = nil, nil, nil
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Info("local audio stopped", "stream", s.streamID)
}

func (s *SilenceSource) pump(track *webrtc.TrackLocalStaticSample, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				s.logger.Debug("writing audio sample", "error", err)
			}
		}
	}
}

type localStream struct {
	id    string
	track webrtc.TrackLocal
}

func (s *localStream) ID() string               { return s.id }
func (s *localStream) Track() webrtc.TrackLocal { return s.track }

var _ Source = (*SilenceSource)(nil)
