// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// DrainSink reads remote RTP so the transport's buffers never fill, and
// counts packets. It plays nothing.
type DrainSink struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDrainSink returns a sink. Both arguments may be nil.
func NewDrainSink(logger *slog.Logger, m *metrics.Metrics) *DrainSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainSink{logger: logger, metrics: m}
}

func (s *DrainSink) Bind(peer transport.Identity, stream transport.RemoteStream) Binding {
	binding := &drainBinding{sink: s, done: make(chan struct{})}
	s.metrics.AudioBound()
	s.logger.Debug("audio bound", "peer", string(peer), "stream", stream.ID())
	go binding.drain(peer, stream)
	return binding
}

type drainBinding struct {
	sink     *DrainSink
	released atomic.Bool
	done     chan struct{}
	packets  atomic.Int64
}

// drain reads until the stream ends or the binding is released. A
// released binding stops at the next packet since ReadRTP cannot be
// interrupted.
func (b *drainBinding) drain(peer transport.Identity, stream transport.RemoteStream) {
	defer close(b.done)
	for {
		_, err := stream.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !b.released.Load() {
				b.sink.logger.Debug("audio stream ended", "peer", string(peer), "error", err)
			}
			break
		}
		if b.released.Load() {
			break
		}
		b.packets.Add(1)
		b.sink.metrics.AudioPacket()
	}
	b.Release()
}

func (b *drainBinding) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.sink.metrics.AudioReleased()
	}
}

var _ Sink = (*DrainSink)(nil)
