// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package audio provides the local audio capture and remote playback
// capabilities an attendee is wired with.
//
// A [Source] produces the single local stream every call carries. A
// [Sink] plays remote streams; each bound stream is a [Binding] that
// the owner releases before binding a replacement.
//
// The implementations here are headless: [SilenceSource] sends Opus
// silence frames on a sample track and [DrainSink] reads and counts
// remote RTP without decoding it. Graphical clients supply their own
// Source and Sink backed by capture and spatial playback.
package audio

import (
	"context"

	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// Source is the local audio capture.
type Source interface {
	// Start begins capture and returns the stream to attach to calls.
	// Calling Start again while running returns the same stream.
	Start(ctx context.Context) (transport.LocalStream, error)

	// Stop ends capture. Idempotent. A later Start begins a new
	// stream.
	Stop()
}

// Sink plays remote audio.
type Sink interface {
	// Bind starts playback of stream from peer.
	Bind(peer transport.Identity, stream transport.RemoteStream) Binding
}

// Binding is one active playback. Release stops it; it is idempotent.
type Binding interface {
	Release()
}
