// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared CBOR configuration for the signaling
// wire protocol.
//
// Two formats are in play. The pose payloads exchanged between attendees
// and the registry HTTP API are JSON, because browser peers speak them.
// Signaling frames between an endpoint and the signaling server are
// CBOR binary WebSocket messages, encoded here with Core Deterministic
// Encoding (RFC 8949 §4.2) so identical messages yield identical bytes.
//
//	data, err := codec.Marshal(message)
//	err = codec.Unmarshal(data, &message)
//
// Types carried only over signaling use `cbor` struct tags. Types that
// also appear in JSON use `json` tags, which the CBOR library honors
// as a fallback.
package codec
