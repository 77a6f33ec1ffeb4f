// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package pose defines the transform messages attendees broadcast over
// their data channels, and the pose state a receiver keeps per peer.
//
// A message is JSON with a numeric "type" discriminator:
//
//	{"type":0,"position":[x,y,z],"rotation":[x,y,z,w]}
//	{"type":1,"headPosition":[x,y,z],"headRotation":[x,y,z,w],
//	 "leftHand":{"position":[...],"rotation":[...]},
//	 "rightHand":{"position":[...],"rotation":[...]}}
//
// Type 0 is a [CameraTransform], sent when the sender is not in an
// immersive session. Type 1 is [XRTransforms]; each hand is present
// only while its controller is tracked. Unknown fields are ignored so
// newer senders can extend the message.
//
// [State] holds the displayable pose of one remote attendee. Applying a
// message of one variant clears the other, so a consumer never sees a
// camera pose mixed with stale head and hand poses.
package pose
