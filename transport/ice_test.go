// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"

	"github.com/syntheticmagus/manifold-meeting-space/lib/config"
)

func TestICEConfigFromSettings_Empty(t *testing.T) {
	if got := ICEConfigFromSettings(nil); len(got.Servers) != 0 {
		t.Errorf("expected no ICE servers, got %d", len(got.Servers))
	}
}

func TestICEConfigFromSettings_SkipsEntriesWithoutURLs(t *testing.T) {
	got := ICEConfigFromSettings([]config.ICEServer{
		{Username: "orphan"},
		{URLs: []string{"stun:stun.example:3478"}},
		{URLs: []string{"turn:turn.example:3478?transport=udp"}, Username: "user", Credential: "secret"},
	})
	if len(got.Servers) != 2 {
		t.Fatalf("expected 2 ICE servers, got %d", len(got.Servers))
	}
	turn := got.Servers[1]
	if turn.Username != "user" {
		t.Errorf("username = %q, want user", turn.Username)
	}
	if turn.Credential != "secret" {
		t.Errorf("credential = %v, want secret", turn.Credential)
	}
}
