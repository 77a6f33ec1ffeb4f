// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrPeerUnreachable is reported on a link when the signaling layer
// says the target identity is unknown or offline.
var ErrPeerUnreachable = errors.New("transport: peer unreachable")

// ErrClosed is returned by operations on a closed endpoint or link.
var ErrClosed = errors.New("transport: closed")

// Identity is the opaque handle the network assigns to an endpoint.
type Identity string

// Opener creates an endpoint. It blocks until the network has assigned
// the endpoint's identity.
type Opener func(ctx context.Context) (Endpoint, error)

// Endpoint is one local identity on the peer-to-peer network.
//
// Connect and Call return immediately with a link in its connecting
// state; negotiation continues in the background and the outcome is
// reported through the link's OnOpen, OnError, and OnClose handlers.
type Endpoint interface {
	// ID returns the identity assigned when the endpoint was opened.
	ID() Identity

	// Connect starts a reliable, ordered data link to peer.
	Connect(peer Identity) (DataLink, error)

	// Call starts a media link to peer carrying stream.
	Call(peer Identity, stream LocalStream) (MediaLink, error)

	// OnConnection sets the handler for data links opened by remote
	// peers. The link is delivered while still connecting.
	OnConnection(handler func(DataLink))

	// OnCall sets the handler for media calls placed by remote peers.
	// The call carries no media until MediaLink.Answer is called.
	OnCall(handler func(MediaLink))

	// Close closes every link and releases the identity. Idempotent.
	Close() error
}

// DataLink is one negotiated data connection.
//
// Handlers registered after the corresponding event already happened
// are invoked immediately: OnOpen on an open link, OnClose and OnError
// on a terminated one. Messages that arrive before OnMessage is set are
// buffered and flushed to the handler when it is set.
type DataLink interface {
	Peer() Identity
	Send(payload []byte) error
	OnOpen(handler func())
	OnMessage(handler func(payload []byte))
	OnClose(handler func())
	OnError(handler func(err error))
	Close() error
}

// MediaLink is one media call. Remote streams that arrive before
// OnStream is set are buffered like DataLink messages.
type MediaLink interface {
	Peer() Identity

	// Answer accepts an inbound call, sending stream back to the caller.
	// Only valid once, on calls delivered through Endpoint.OnCall.
	Answer(stream LocalStream) error

	OnOpen(handler func())
	OnStream(handler func(stream RemoteStream))
	OnClose(handler func())
	OnError(handler func(err error))
	Close() error
}

// LocalStream is outgoing media. Track may be nil for a receive-only
// stream.
type LocalStream interface {
	ID() string
	Track() webrtc.TrackLocal
}

// RemoteStream is incoming media from a peer.
type RemoteStream interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
}
