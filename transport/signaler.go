// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler carries session descriptions between endpoints. The
// production implementation is a websocket to the signaling server;
// tests use a MemorySignalHub.
//
// Signaling is vanilla ICE: every candidate is gathered before the SDP
// is sent, so each link needs exactly one offer and one answer.
type Signaler interface {
	// Open registers with the signaling service and returns the
	// identity it assigned.
	Open(ctx context.Context) (Identity, error)

	// Send routes message to message.Destination. The service fills in
	// Source.
	Send(ctx context.Context, message SignalMessage) error

	// Messages delivers messages addressed to this endpoint. Closed by
	// Close or when the service connection drops.
	Messages() <-chan SignalMessage

	// Close disconnects from the signaling service. Idempotent.
	Close() error
}

// SignalType discriminates signaling messages.
type SignalType string

const (
	// SignalOpen is sent by the service once, carrying the assigned
	// identity in Destination.
	SignalOpen SignalType = "open"

	// SignalOffer starts a link. SDP holds the complete offer.
	SignalOffer SignalType = "offer"

	// SignalAnswer completes a link. SDP holds the complete answer.
	SignalAnswer SignalType = "answer"

	// SignalBye tells the other side the link was closed.
	SignalBye SignalType = "bye"

	// SignalUnavailable is sent by the service back to the sender when
	// the destination is not connected.
	SignalUnavailable SignalType = "unavailable"
)

// LinkKind says whether an offer is for a data or media link.
type LinkKind string

const (
	KindData  LinkKind = "data"
	KindMedia LinkKind = "media"
)

// SignalMessage is one signaling frame. On the websocket it is a CBOR
// binary message.
type SignalMessage struct {
	Type        SignalType `cbor:"type"`
	Source      Identity   `cbor:"src,omitempty"`
	Destination Identity   `cbor:"dst,omitempty"`

	// ConnectionID names the link, chosen by the side that offers.
	ConnectionID string   `cbor:"cid,omitempty"`
	Kind         LinkKind `cbor:"kind,omitempty"`
	SDP          string   `cbor:"sdp,omitempty"`
}
