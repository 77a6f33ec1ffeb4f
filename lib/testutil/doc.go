// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the meeting-space tests.
//
// [RequireReceive], [RequireSend], [RequireClosed], and [Eventually]
// bound every wait on another goroutine with a wall-clock safety
// timeout, so a regression hangs one test for seconds instead of the
// whole suite for the go test deadline. They are the only place tests
// touch real time; everything else is driven by a fake clock.
//
// [UniqueID] yields distinct peer identities and space names across
// tests sharing one in-memory network or registry.
package testutil
