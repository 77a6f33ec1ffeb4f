// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package attendee

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syntheticmagus/manifold-meeting-space/audio"
	"github.com/syntheticmagus/manifold-meeting-space/lib/testutil"
	"github.com/syntheticmagus/manifold-meeting-space/peer"
	"github.com/syntheticmagus/manifold-meeting-space/pose"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
	"github.com/syntheticmagus/manifold-meeting-space/transport/transporttest"
)

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a local session paired with "remote" over an in-memory
// network. dataLink and mediaLink are the local ends of the channels.
type fixture struct {
	network   *transporttest.Network
	data      *peer.DataChannel
	media     *peer.MediaChannel
	dataLink  *transporttest.DataLink
	mediaLink *transporttest.MediaLink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	network := transporttest.NewNetwork()
	local, err := peer.Create(context.Background(), network.OpenerWithID("local"),
		peer.Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(local.Dispose)

	remote, err := network.Open("remote")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { remote.Close() })
	remote.OnConnection(func(transport.DataLink) {})

	data, err := local.ConnectData(context.Background(), "remote")
	if err != nil {
		t.Fatalf("ConnectData: %v", err)
	}
	media, err := local.CallMedia("remote", transporttest.Stream{Name: "local-audio"})
	if err != nil {
		t.Fatalf("CallMedia: %v", err)
	}
	endpoint := network.Endpoint("local")
	return &fixture{
		network:   network,
		data:      data,
		media:     media,
		dataLink:  endpoint.DataLink("remote"),
		mediaLink: endpoint.MediaLink("remote"),
	}
}

type recordingSink struct {
	mu       sync.Mutex
	bindings []*recordingBinding
}

type recordingBinding struct {
	stream   string
	released atomic.Int32
}

func (b *recordingBinding) Release() { b.released.Add(1) }

func (s *recordingSink) Bind(_ transport.Identity, stream transport.RemoteStream) audio.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding := &recordingBinding{stream: stream.ID()}
	s.bindings = append(s.bindings, binding)
	return binding
}

func (s *recordingSink) all() []*recordingBinding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*recordingBinding(nil), s.bindings...)
}

func TestDisconnectedFiresOnceForEitherOrder(t *testing.T) {
	for _, test := range []struct {
		name  string
		first func(f *fixture)
		then  func(f *fixture)
	}{
		{"data then media",
			func(f *fixture) { f.dataLink.Terminate(nil) },
			func(f *fixture) { f.mediaLink.Terminate(nil) }},
		{"media then data",
			func(f *fixture) { f.mediaLink.Terminate(errors.New("ice failed")) },
			func(f *fixture) { f.dataLink.Terminate(nil) }},
		{"data error then data close",
			func(f *fixture) { f.dataLink.Terminate(errors.New("sctp abort")) },
			func(f *fixture) { f.dataLink.Close() }},
	} {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			attendee := New(f.data, f.media, Options{Logger: discardLogger()})
			defer attendee.Dispose()

			var fired atomic.Int32
			attendee.OnDisconnected().Add(func() { fired.Add(1) })

			test.first(f)
			test.then(f)
			if got := fired.Load(); got != 1 {
				t.Fatalf("OnDisconnected fired %d times, want 1", got)
			}
			testutil.RequireClosed(t, attendee.OnDisconnected().Done(), waitTimeout, "disconnect signal")
		})
	}
}

func TestPayloadUpdatesPose(t *testing.T) {
	f := newFixture(t)
	attendee := New(f.data, f.media, Options{Logger: discardLogger()})
	defer attendee.Dispose()

	updates := make(chan pose.State, 1)
	attendee.OnPose().Add(func(state pose.State) { updates <- state })

	f.dataLink.Deliver([]byte(`{"type":1,"headPosition":[0,1,0],"headRotation":[0,0,0,1]}`))
	update := testutil.RequireReceive(t, updates, waitTimeout, "pose update")

	for _, state := range []pose.State{update, attendee.Pose()} {
		if state.Head == nil || state.Head.Position != (pose.Vector3{0, 1, 0}) ||
			state.Head.Rotation != (pose.Quaternion{0, 0, 0, 1}) {
			t.Errorf("head = %v, want (0,1,0)/(0,0,0,1)", state.Head)
		}
		if state.LeftHand != nil || state.RightHand != nil {
			t.Error("hands enabled by a head-only message")
		}
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	f := newFixture(t)
	attendee := New(f.data, f.media, Options{Logger: discardLogger()})
	defer attendee.Dispose()

	f.dataLink.Deliver([]byte(`{"type":0,"position":[1,2,3],"rotation":[0,0,0,1]}`))
	f.dataLink.Deliver([]byte(`{"type":0,"position":`))
	f.dataLink.Deliver([]byte(`{"type":7}`))

	state := attendee.Pose()
	if state.Camera == nil || state.Camera.Position != (pose.Vector3{1, 2, 3}) {
		t.Errorf("camera = %v; malformed payloads must not disturb the last good pose", state.Camera)
	}
	if f.data.State() != peer.Open {
		t.Errorf("data channel %s after malformed payloads, want open", f.data.State())
	}
	if attendee.OnDisconnected().Fired() {
		t.Error("malformed payload disconnected the attendee")
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	attendee := New(f.data, f.media, Options{Logger: discardLogger()})
	defer attendee.Dispose()

	message := &pose.CameraTransform{Position: pose.Vector3{0, 1.6, 0}, Rotation: pose.IdentityRotation}
	if err := attendee.SendMessage(message); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sent := f.dataLink.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d payloads, want 1", len(sent))
	}
	parsed, err := pose.Parse(sent[0])
	if err != nil {
		t.Fatalf("Parse(sent): %v", err)
	}
	if camera := parsed.(*pose.CameraTransform); camera.Position != message.Position {
		t.Errorf("sent position %v, want %v", camera.Position, message.Position)
	}

	f.dataLink.Terminate(nil)
	if err := attendee.SendMessage(message); !errors.Is(err, peer.ErrChannelNotOpen) {
		t.Errorf("SendMessage after close = %v, want ErrChannelNotOpen", err)
	}
}

func TestSecondStreamReplacesBinding(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	attendee := New(f.data, f.media, Options{Sink: sink, Logger: discardLogger()})
	defer attendee.Dispose()

	f.mediaLink.EmitStream(transporttest.Stream{Name: "first"})
	f.mediaLink.EmitStream(transporttest.Stream{Name: "second"})

	bindings := sink.all()
	if len(bindings) != 2 {
		t.Fatalf("bound %d streams, want 2", len(bindings))
	}
	if bindings[0].stream != "first" || bindings[0].released.Load() != 1 {
		t.Errorf("first binding %q released %d times, want once", bindings[0].stream, bindings[0].released.Load())
	}
	if bindings[1].stream != "second" || bindings[1].released.Load() != 0 {
		t.Errorf("second binding %q released %d times, want active", bindings[1].stream, bindings[1].released.Load())
	}
}

func TestStreamBeforeConstructionIsBound(t *testing.T) {
	f := newFixture(t)
	f.mediaLink.EmitStream(transporttest.Stream{Name: "early"})

	sink := &recordingSink{}
	attendee := New(f.data, f.media, Options{Sink: sink, Logger: discardLogger()})
	defer attendee.Dispose()

	if bindings := sink.all(); len(bindings) != 1 || bindings[0].stream != "early" {
		t.Fatalf("bindings = %v, want the early stream", bindings)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	attendee := New(f.data, f.media, Options{Sink: sink, Logger: discardLogger()})
	f.mediaLink.EmitStream(transporttest.Stream{Name: "voice"})

	var fired atomic.Int32
	attendee.OnDisconnected().Add(func() { fired.Add(1) })

	attendee.Dispose()
	attendee.Dispose()

	if f.data.State() != peer.Closed || f.media.State() != peer.Closed {
		t.Errorf("channels = %s/%s after Dispose, want closed", f.data.State(), f.media.State())
	}
	if binding := sink.all()[0]; binding.released.Load() != 1 {
		t.Errorf("binding released %d times, want 1", binding.released.Load())
	}
	if fired.Load() != 0 {
		t.Error("Dispose fired OnDisconnected")
	}

	// Streams and payloads after Dispose are ignored.
	f.mediaLink.EmitStream(transporttest.Stream{Name: "late"})
	if len(sink.all()) != 1 {
		t.Error("stream bound after Dispose")
	}
}

func TestDisposeAfterDisconnect(t *testing.T) {
	f := newFixture(t)
	attendee := New(f.data, f.media, Options{Logger: discardLogger()})
	f.dataLink.Terminate(errors.New("remote vanished"))
	if !attendee.OnDisconnected().Fired() {
		t.Fatal("disconnect not signalled")
	}
	attendee.Dispose()
	if f.media.State() != peer.Closed {
		t.Errorf("media = %s after Dispose, want closed", f.media.State())
	}
}
