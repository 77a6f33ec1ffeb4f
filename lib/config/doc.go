// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the meeting-space binaries.
//
// A configuration file is named by the --config flag (via [LoadFile])
// or the MANIFOLD_CONFIG environment variable (via [Load]). YAML is the
// primary format; files ending in .json or .jsonc are accepted and may
// carry comments and trailing commas. The file is merged over
// [Default], then the section matching [Config].Environment
// (development or production) overrides base values, then ${VAR} and
// ${VAR:-default} references in URL and address fields are expanded.
//
// Durations are written as Go duration strings ("100ms", "30s") and
// decode into [Duration].
//
// This package depends on no other meeting-space packages.
package config
