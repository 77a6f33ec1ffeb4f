// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transporttest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// Compile-time interface checks.
var (
	_ transport.DataLink     = (*DataLink)(nil)
	_ transport.MediaLink    = (*MediaLink)(nil)
	_ transport.LocalStream  = Stream{}
	_ transport.RemoteStream = Stream{}
)

// DataLink is one end of an in-memory data link. Open, Terminate, and
// Deliver let a test drive it directly.
type DataLink struct {
	transport.Lifecycle

	endpoint *Endpoint
	peer     transport.Identity
	remote   *DataLink
	messages transport.Inbox[[]byte]

	mu   sync.Mutex
	sent [][]byte
}

func (l *DataLink) Peer() transport.Identity               { return l.peer }
func (l *DataLink) OnOpen(handler func())                  { l.SetOnOpen(handler) }
func (l *DataLink) OnClose(handler func())                 { l.SetOnClose(handler) }
func (l *DataLink) OnError(handler func(error))            { l.SetOnError(handler) }
func (l *DataLink) OnMessage(handler func(payload []byte)) { l.messages.SetHandler(handler) }

// Send records payload and delivers it to the remote end.
func (l *DataLink) Send(payload []byte) error {
	if !l.IsOpen() {
		return fmt.Errorf("data link to %s: %w", l.peer, transport.ErrClosed)
	}
	copied := append([]byte(nil), payload...)
	l.mu.Lock()
	l.sent = append(l.sent, copied)
	l.mu.Unlock()
	if l.remote != nil {
		l.remote.messages.Deliver(copied)
	}
	return nil
}

// Close closes both ends.
func (l *DataLink) Close() error {
	l.MarkClosed()
	if l.remote != nil {
		l.remote.MarkClosed()
	}
	return nil
}

// Open opens this end only.
func (l *DataLink) Open() { l.MarkOpen() }

// Terminate ends this end only: with err as a failure, or as a plain
// close when err is nil. The remote end is not told.
func (l *DataLink) Terminate(err error) {
	if err != nil {
		l.Fail(err)
		return
	}
	l.MarkClosed()
}

// Deliver injects an inbound payload as if the remote end sent it.
func (l *DataLink) Deliver(payload []byte) { l.messages.Deliver(payload) }

// Sent returns every payload sent on this end.
func (l *DataLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}

// Remote returns the other end, or nil for a link to an unknown peer.
func (l *DataLink) Remote() *DataLink { return l.remote }

// MediaLink is one end of an in-memory call.
type MediaLink struct {
	transport.Lifecycle

	endpoint *Endpoint
	peer     transport.Identity
	inbound  bool
	remote   *MediaLink
	stream   transport.LocalStream
	streams  transport.Inbox[transport.RemoteStream]
	answered atomic.Bool
}

func (l *MediaLink) Peer() transport.Identity    { return l.peer }
func (l *MediaLink) OnOpen(handler func())       { l.SetOnOpen(handler) }
func (l *MediaLink) OnClose(handler func())      { l.SetOnClose(handler) }
func (l *MediaLink) OnError(handler func(error)) { l.SetOnError(handler) }

func (l *MediaLink) OnStream(handler func(transport.RemoteStream)) {
	l.streams.SetHandler(handler)
}

// Answer accepts an inbound call. Both ends open and each receives the
// other's stream, on another goroutine.
func (l *MediaLink) Answer(stream transport.LocalStream) error {
	if !l.inbound {
		return errors.New("transporttest: outbound calls cannot be answered")
	}
	if l.IsClosed() {
		return transport.ErrClosed
	}
	if !l.answered.CompareAndSwap(false, true) {
		return errors.New("transporttest: call already answered")
	}
	l.stream = stream
	go func() {
		l.MarkOpen()
		l.remote.MarkOpen()
		if l.remote.stream != nil {
			l.streams.Deliver(Stream{Name: l.remote.stream.ID()})
		}
		if stream != nil {
			l.remote.streams.Deliver(Stream{Name: stream.ID()})
		}
	}()
	return nil
}

// Answered reports whether Answer succeeded.
func (l *MediaLink) Answered() bool { return l.answered.Load() }

// LocalStream returns the stream this end sends: the one passed to
// Call, or to Answer.
func (l *MediaLink) LocalStream() transport.LocalStream { return l.stream }

// Close closes both ends.
func (l *MediaLink) Close() error {
	l.MarkClosed()
	if l.remote != nil {
		l.remote.MarkClosed()
	}
	return nil
}

// Open opens this end only.
func (l *MediaLink) Open() { l.MarkOpen() }

// Terminate ends this end only, like DataLink.Terminate.
func (l *MediaLink) Terminate(err error) {
	if err != nil {
		l.Fail(err)
		return
	}
	l.MarkClosed()
}

// EmitStream delivers stream as if the remote end (re)negotiated media.
func (l *MediaLink) EmitStream(stream transport.RemoteStream) { l.streams.Deliver(stream) }

// Remote returns the other end, or nil for a call to an unknown peer.
func (l *MediaLink) Remote() *MediaLink { return l.remote }

// Stream is a named media stream with no track and no packets. It
// serves as both a LocalStream and a RemoteStream.
type Stream struct {
	Name string
}

func (s Stream) ID() string                    { return s.Name }
func (s Stream) Track() webrtc.TrackLocal      { return nil }
func (s Stream) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }
