// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the publish/subscribe primitives used between
// channels, sessions, attendees, and the space controller.
//
// [Observable] delivers every notification to the observers registered
// at the time of the call. Add returns an [Observer] handle; whoever
// subscribes is responsible for removing the handle in its own dispose
// path so that no callback outlives the entity it references.
//
// [Latch] is a fire-once signal. The first Fire notifies observers and
// closes the Done channel; later calls are no-ops. Observers added after
// the latch fired are invoked immediately, so a subscriber can never miss
// a terminal event that raced with its subscription.
//
// Observers are always invoked without any internal lock held, which
// makes it safe for a callback to add or remove observers (including
// itself) or to fire other events.
package event
