// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/syntheticmagus/manifold-meeting-space/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// Commit returns the injected commit, or the toolchain-recorded VCS
// revision (shortened, with a -dirty suffix for modified trees).
func Commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return GitCommit
	}
	revision, dirty := "", false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return GitCommit
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

// Info returns the --version line for a binary.
func Info(binary string) string {
	return fmt.Sprintf("%s %s (%s, %s %s/%s)",
		binary, Version, Commit(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
