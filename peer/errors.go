// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import "errors"

var (
	// ErrTransportInit wraps any failure to open the local endpoint.
	ErrTransportInit = errors.New("peer: transport initialization failed")

	// ErrConnectTimeout means a handshake did not complete in time.
	ErrConnectTimeout = errors.New("peer: connect timed out")

	// ErrPeerUnreachable means the target is unknown or offline, or its
	// link ended before opening.
	ErrPeerUnreachable = errors.New("peer: peer unreachable")

	// ErrSessionDisposed is returned by operations after Dispose.
	ErrSessionDisposed = errors.New("peer: session disposed")

	// ErrChannelNotOpen is returned by Send when the payload was dropped
	// because the channel is not open.
	ErrChannelNotOpen = errors.New("peer: channel not open")
)
