// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer turns transport links into channels with a single
// lifecycle and owns the local identity's endpoint.
//
// A [DataChannel] or [MediaChannel] wraps one transport link. Its state
// moves Connecting to Open to Closed and never back; a channel that
// closed is replaced, not reopened. Opened fires once. Terminated fires
// exactly once whether the link was closed locally, closed remotely, or
// failed: a failure is logged and then treated as a close, so owners
// need a single teardown path. [DataChannel.Send] on a channel that is
// not open drops the payload and returns [ErrChannelNotOpen].
//
// A [Session] opens the endpoint, dials data channels and places calls,
// and publishes inbound channels: data channels once they are open,
// calls as soon as they arrive. Dispose closes every channel the
// session produced and then the endpoint.
//
// Errors: [ErrTransportInit] when the endpoint cannot be opened,
// [ErrConnectTimeout] when a data channel does not open in time, and
// [ErrPeerUnreachable] when the link fails or closes before opening.
package peer
