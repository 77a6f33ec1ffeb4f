// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so that connect timeouts,
// pairing timeouts, and the pose broadcast ticker can be driven
// deterministically in tests.
//
// Production code receives [Real]. Tests construct a [FakeClock] with
// [Fake], call [FakeClock.WaitForTimers] to wait until the code under
// test has armed its timers, then [FakeClock.Advance] to fire them.
package clock
