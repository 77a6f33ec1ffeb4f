// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the meeting-space
// binaries. Fatal covers the one raw stderr write that happens when the
// structured logger may not exist yet.
package process
