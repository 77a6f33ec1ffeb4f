// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the peer-to-peer networking layer beneath a
// meeting space.
//
// An [Endpoint] is one identity on the network. It opens [DataLink]s
// (reliable, ordered payload links used for pose updates) and
// [MediaLink]s (audio calls), and surfaces links opened by remote peers
// through OnConnection and OnCall. Links start out connecting; their
// outcome arrives through OnOpen, OnError, and OnClose, and handlers
// registered after the fact are replayed by [Lifecycle], so a consumer
// can never miss the transition it subscribed for.
//
// [WebRTCTransport] implements Endpoint on pion/webrtc. Each link has
// its own PeerConnection and is negotiated with a single vanilla-ICE
// offer/answer exchange through a [Signaler]. [WebSocketSignaler]
// speaks CBOR frames to the signaling server; [MemorySignalHub] routes
// in-process for tests. A signal addressed to an identity the service
// does not know comes back as [SignalUnavailable], which fails the link
// with [ErrPeerUnreachable].
//
// [ICEConfig] holds STUN/TURN servers; [ICEConfigFromSettings] builds it
// from the ice section of the configuration file.
//
// The transporttest subpackage provides an in-memory Endpoint network
// with scriptable links for testing the layers above.
package transport
