// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AttendeeJoined()
	m.AttendeeLeft()
	m.PairingStarted("outbound")
	m.PairingFailed(ReasonTimeout)
	m.MessageSent()
	m.MessageDropped()
	m.MessageReceived()
	m.MessageMalformed()
	m.AudioPacket()
	m.AudioBound()
	m.AudioReleased()
	m.RegistryJoin("ok")
	m.SignalingConnected()
	m.SignalingDisconnected()
	m.SignalingRelayed("offer")

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	if recorder.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", recorder.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.AttendeeJoined()
	m.AttendeeJoined()
	m.AttendeeLeft()
	m.PairingFailed(ReasonTimeout)
	m.PairingFailed(ReasonTimeout)
	m.PairingFailed(ReasonUnreachable)
	m.MessageMalformed()

	if got := testutil.ToFloat64(m.attendees); got != 1 {
		t.Errorf("attendees = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pairingFailures.WithLabelValues(ReasonTimeout)); got != 2 {
		t.Errorf("timeout failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.messagesMalformed); got != 1 {
		t.Errorf("malformed = %v, want 1", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.SignalingConnected()
	m.SignalingRelayed("offer")

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body := recorder.Body.String()
	for _, want := range []string{
		"manifold_signaling_clients 1",
		`manifold_signaling_relayed_total{type="offer"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
