// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/lib/testutil"
)

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSilenceSourceLifecycle(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	source := NewSilenceSource(SilenceConfig{StreamID: "local", Clock: fake, Logger: discardLogger()})

	stream, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stream.ID() != "local" {
		t.Errorf("ID() = %q, want local", stream.ID())
	}
	if stream.Track() == nil || stream.Track().Kind().String() != "audio" {
		t.Fatalf("Track() = %v, want an audio track", stream.Track())
	}
	again, err := source.Start(context.Background())
	if err != nil || again != stream {
		t.Errorf("second Start = %v, %v; want the same stream", again, err)
	}

	// Frames are paced by the ticker; writing without bound peers is a
	// no-op.
	fake.WaitForTimers(1)
	fake.Advance(3 * frameDuration)

	source.Stop()
	source.Stop()
	if fake.PendingCount() != 0 {
		t.Errorf("ticker still pending after Stop: %d", fake.PendingCount())
	}

	restarted, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	if restarted == stream {
		t.Error("restart reused the stopped stream")
	}
	source.Stop()
}

func TestSilenceSourceStartCancelled(t *testing.T) {
	source := NewSilenceSource(SilenceConfig{Logger: discardLogger()})
	source.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start with cancelled context = %v, want context.Canceled", err)
	}
}

// packetStream yields packets from a channel and io.EOF once it closes.
type packetStream struct {
	packets chan *rtp.Packet
}

func (s *packetStream) ID() string { return "remote" }

func (s *packetStream) ReadRTP() (*rtp.Packet, error) {
	packet, ok := <-s.packets
	if !ok {
		return nil, io.EOF
	}
	return packet, nil
}

func TestDrainSinkCountsUntilEOF(t *testing.T) {
	sink := NewDrainSink(discardLogger(), nil)
	stream := &packetStream{packets: make(chan *rtp.Packet, 3)}
	for sequence := 0; sequence < 3; sequence++ {
		stream.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(sequence)}}
	}
	close(stream.packets)

	binding := sink.Bind("peer", stream).(*drainBinding)
	testutil.RequireClosed(t, binding.done, waitTimeout, "drain exit")
	if got := binding.packets.Load(); got != 3 {
		t.Errorf("packets = %d, want 3", got)
	}
	binding.Release()
}

func TestDrainSinkReleaseStopsCounting(t *testing.T) {
	sink := NewDrainSink(discardLogger(), nil)
	stream := &packetStream{packets: make(chan *rtp.Packet)}

	binding := sink.Bind("peer", stream).(*drainBinding)
	testutil.RequireSend(t, stream.packets, &rtp.Packet{}, waitTimeout, "first packet")
	testutil.Eventually(t, func() bool { return binding.packets.Load() == 1 }, waitTimeout, "first packet counted")

	binding.Release()
	testutil.RequireSend(t, stream.packets, &rtp.Packet{}, waitTimeout, "packet after release")
	testutil.RequireClosed(t, binding.done, waitTimeout, "drain exit after release")
	if got := binding.packets.Load(); got != 1 {
		t.Errorf("packets = %d, want 1", got)
	}
}
