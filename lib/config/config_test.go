// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Session.BroadcastInterval.Std() != 100*time.Millisecond {
		t.Errorf("expected broadcast_interval=100ms, got %s", cfg.Session.BroadcastInterval)
	}
	if cfg.Session.ConnectTimeout.Std() != 10*time.Second {
		t.Errorf("expected connect_timeout=10s, got %s", cfg.Session.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when MANIFOLD_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "MANIFOLD_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() without sources failed: %v", err)
	}
	if cfg.Registry.URL != Default().Registry.URL {
		t.Errorf("expected defaults, got registry.url=%q", cfg.Registry.URL)
	}

	fromEnv := writeConfig(t, "env.yaml", "log:\n  level: warn\n")
	fromFlag := writeConfig(t, "flag.yaml", "log:\n  level: error\n")
	t.Setenv(EnvironmentVariable, fromEnv)

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() from environment failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn from %s", cfg.Log.Level, EnvironmentVariable)
	}
	cfg, err = Resolve(fromFlag)
	if err != nil {
		t.Fatalf("Resolve(path) failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log.level = %q, want the explicit path to win", cfg.Log.Level)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "manifold.yaml", `
environment: production
registry:
  url: https://registry.example/
session:
  pairing_timeout: 5s
ice:
  servers:
    - urls: ["turn:turn.example:3478"]
      username: user
      credential: secret
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Production {
		t.Errorf("expected environment=production, got %s", cfg.Environment)
	}
	if cfg.Registry.URL != "https://registry.example/" {
		t.Errorf("registry.url = %q", cfg.Registry.URL)
	}
	if cfg.Session.PairingTimeout.Std() != 5*time.Second {
		t.Errorf("pairing_timeout = %s, want 5s", cfg.Session.PairingTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Session.BroadcastInterval.Std() != 100*time.Millisecond {
		t.Errorf("broadcast_interval = %s, want default 100ms", cfg.Session.BroadcastInterval)
	}
	if len(cfg.ICE.Servers) != 1 || cfg.ICE.Servers[0].Username != "user" {
		t.Errorf("ice.servers = %+v", cfg.ICE.Servers)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "manifold.jsonc", `{
  // local development against a laptop registry
  "registry": {"url": "http://10.0.0.5:9000/"},
  "session": {"broadcast_interval": "50ms",},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Registry.URL != "http://10.0.0.5:9000/" {
		t.Errorf("registry.url = %q", cfg.Registry.URL)
	}
	if cfg.Session.BroadcastInterval.Std() != 50*time.Millisecond {
		t.Errorf("broadcast_interval = %s, want 50ms", cfg.Session.BroadcastInterval)
	}
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "manifold.yaml", `
environment: production
log:
  level: debug
production:
  log:
    level: warn
  session:
    connect_timeout: 3s
development:
  log:
    level: error
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want production override warn", cfg.Log.Level)
	}
	if cfg.Session.ConnectTimeout.Std() != 3*time.Second {
		t.Errorf("connect_timeout = %s, want 3s", cfg.Session.ConnectTimeout)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("MANIFOLD_TEST_HOST", "registry.internal")
	path := writeConfig(t, "manifold.yaml", `
registry:
  url: http://${MANIFOLD_TEST_HOST}/
signaling:
  url: ws://${MANIFOLD_TEST_UNSET:-fallback.internal}/signal
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Registry.URL != "http://registry.internal/" {
		t.Errorf("registry.url = %q", cfg.Registry.URL)
	}
	if cfg.Signaling.URL != "ws://fallback.internal/signal" {
		t.Errorf("signaling.url = %q", cfg.Signaling.URL)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeConfig(t, "manifold.yaml", "session:\n  pairing_timeout: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.Registry.URL = "ftp://registry/"
	cfg.Signaling.URL = ""
	cfg.Session.BroadcastInterval = 0
	cfg.Log.Level = "loud"
	cfg.ICE.Servers = []ICEServer{{}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{
		"invalid environment",
		"registry.url",
		"signaling.url is required",
		"session.broadcast_interval must be positive",
		"log.level",
		"ice.servers[0].urls",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not mention %q", err, fragment)
		}
	}
}
