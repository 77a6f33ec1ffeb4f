// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration holds end-to-end tests that run the registry,
// the signaling relay, and several attendees over real WebRTC on the
// loopback interface. They are skipped under -short.
package integration
