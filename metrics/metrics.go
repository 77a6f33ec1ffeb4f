// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors for attendees and the
// registry server. Every method is safe on a nil *Metrics, so
// components take an optional *Metrics and call it unconditionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manifold"

// Pairing failure reasons.
const (
	ReasonTimeout     = "timeout"
	ReasonUnreachable = "unreachable"
	ReasonClosed      = "closed"
	ReasonLeft        = "left"
	ReasonGlare       = "glare"
)

// Metrics is one set of registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	attendees         prometheus.Gauge
	pairingAttempts   *prometheus.CounterVec
	pairingFailures   *prometheus.CounterVec
	messagesSent      prometheus.Counter
	messagesDropped   prometheus.Counter
	messagesReceived  prometheus.Counter
	messagesMalformed prometheus.Counter
	audioPackets      prometheus.Counter
	audioBindings     prometheus.Gauge
	registryJoins     *prometheus.CounterVec
	signalingClients  prometheus.Gauge
	signalingRelayed  *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// that also carries the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attendees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "space", Name: "attendees",
			Help: "Remote attendees currently paired.",
		}),
		pairingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "space", Name: "pairing_attempts_total",
			Help: "Pairings started, by direction.",
		}, []string{"direction"}),
		pairingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "space", Name: "pairing_failures_total",
			Help: "Pairings abandoned, by reason.",
		}, []string{"reason"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendee", Name: "messages_sent_total",
			Help: "Transform messages handed to a data channel.",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendee", Name: "messages_dropped_total",
			Help: "Transform messages dropped because the data channel was not open.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendee", Name: "messages_received_total",
			Help: "Transform messages parsed and applied.",
		}),
		messagesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendee", Name: "messages_malformed_total",
			Help: "Inbound payloads dropped as malformed.",
		}),
		audioPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audio", Name: "packets_total",
			Help: "RTP packets read from remote audio streams.",
		}),
		audioBindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "audio", Name: "bindings",
			Help: "Remote audio streams currently bound to a sink.",
		}),
		registryJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "registry", Name: "joins_total",
			Help: "Registry join requests, by outcome.",
		}, []string{"outcome"}),
		signalingClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "signaling", Name: "clients",
			Help: "Connected signaling clients.",
		}),
		signalingRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signaling", Name: "relayed_total",
			Help: "Signaling messages routed, by type.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.attendees,
		m.pairingAttempts,
		m.pairingFailures,
		m.messagesSent,
		m.messagesDropped,
		m.messagesReceived,
		m.messagesMalformed,
		m.audioPackets,
		m.audioBindings,
		m.registryJoins,
		m.signalingClients,
		m.signalingRelayed,
	)
	return m
}

// Handler serves the registry in the Prometheus text format. A nil
// *Metrics serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry to tests and embedding servers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) AttendeeJoined() {
	if m != nil {
		m.attendees.Inc()
	}
}

func (m *Metrics) AttendeeLeft() {
	if m != nil {
		m.attendees.Dec()
	}
}

// PairingStarted counts a pairing; direction is "outbound" or "inbound".
func (m *Metrics) PairingStarted(direction string) {
	if m != nil {
		m.pairingAttempts.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) PairingFailed(reason string) {
	if m != nil {
		m.pairingFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) MessageDropped() {
	if m != nil {
		m.messagesDropped.Inc()
	}
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) MessageMalformed() {
	if m != nil {
		m.messagesMalformed.Inc()
	}
}

func (m *Metrics) AudioPacket() {
	if m != nil {
		m.audioPackets.Inc()
	}
}

func (m *Metrics) AudioBound() {
	if m != nil {
		m.audioBindings.Inc()
	}
}

func (m *Metrics) AudioReleased() {
	if m != nil {
		m.audioBindings.Dec()
	}
}

// RegistryJoin counts a join by outcome: "ok" or "error".
func (m *Metrics) RegistryJoin(outcome string) {
	if m != nil {
		m.registryJoins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SignalingConnected() {
	if m != nil {
		m.signalingClients.Inc()
	}
}

func (m *Metrics) SignalingDisconnected() {
	if m != nil {
		m.signalingClients.Dec()
	}
}

func (m *Metrics) SignalingRelayed(messageType string) {
	if m != nil {
		m.signalingRelayed.WithLabelValues(messageType).Inc()
	}
}
