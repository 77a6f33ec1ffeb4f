// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling is the websocket relay that carries session
// descriptions between attendees.
//
// Each websocket connection gets a fresh identity and an open frame
// announcing it. Every later frame the client sends is a CBOR
// [transport.SignalMessage]; the server stamps Source with the sender's
// identity and forwards the frame to Destination. Frames addressed to an
// identity that is not connected come back to the sender as
// [transport.SignalUnavailable], except bye frames, which are dropped.
//
// The server keeps no per-link state. Pairing, glare, and timeouts live
// in the clients.
package signaling
