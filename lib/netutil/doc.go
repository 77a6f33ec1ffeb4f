// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors and bounds response
// reads for the meeting-space network clients.
package netutil
