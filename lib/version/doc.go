// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the meeting-space
// binaries. [Version] and [GitCommit] are injected with -ldflags -X;
// when they are left at their defaults, [Info] falls back to the VCS
// revision the Go toolchain records in the binary.
package version
