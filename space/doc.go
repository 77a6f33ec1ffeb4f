// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package space orchestrates membership in a named meeting space.
//
// A [Controller] moves through Idle, Joining, Active, and Leaving. Join
// starts local audio, opens a peer session, asks the attendance
// [Registry] for the current roster, and pairs with every member. Each
// pairing binds one data channel and one media call from the same peer
// into an [attendee.RemoteAttendee].
//
// Pairing is asymmetric. The joiner connects a data channel to each
// roster member and waits for that member to call back; the member
// learns of the joiner from the inbound data channel and places the
// call. The joiner answers with its own audio, so one call carries
// voice in both directions. A pending pairing is abandoned after the
// pairing timeout.
//
// When both sides connect to each other at once, the side with the
// lexicographically smaller identity keeps the joiner role and the other
// yields.
//
// While Active, the controller sends the local pose to every attendee
// at the broadcast interval. A failed send to one attendee never blocks
// the others.
package space
