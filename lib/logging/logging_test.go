// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded")
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewWithWriter(&buffer, slog.LevelWarn, false)
	logger.Info("filtered")
	logger.Warn("attendee left", "peer", "alpha")

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want only the warning: %q", len(lines), buffer.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "attendee left" || record["peer"] != "alpha" {
		t.Errorf("record = %v", record)
	}
}

func TestNewWithWriterText(t *testing.T) {
	var buffer bytes.Buffer
	NewWithWriter(&buffer, slog.LevelInfo, true).Info("joined", "space", "lobby")
	if !strings.Contains(buffer.String(), "space=lobby") {
		t.Errorf("text output = %q", buffer.String())
	}
}
