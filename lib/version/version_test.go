// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestCommitPrefersInjectedValue(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit = saved })

	GitCommit = "abc1234"
	if got := Commit(); got != "abc1234" {
		t.Fatalf("Commit() = %q, want injected abc1234", got)
	}
}

func TestInfoNamesBinaryAndVersion(t *testing.T) {
	info := Info("manifold-attendee")
	if !strings.HasPrefix(info, "manifold-attendee "+Version+" (") {
		t.Fatalf("Info() = %q", info)
	}
}
