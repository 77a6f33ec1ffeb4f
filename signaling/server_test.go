// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/syntheticmagus/manifold-meeting-space/lib/testutil"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves the relay at /signal and returns its websocket URL.
func startServer(t *testing.T, config ServerConfig) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Logger = discardLogger()
	server := NewServer(config)
	router := gin.New()
	router.GET("/signal", server.HandleWebSocket)
	httpServer := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})
	return server, "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/signal"
}

func dial(t *testing.T, url string) (*transport.WebSocketSignaler, transport.Identity) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	signaler, err := transport.DialSignaler(ctx, url, discardLogger())
	if err != nil {
		t.Fatalf("DialSignaler: %v", err)
	}
	t.Cleanup(func() { signaler.Close() })
	id, err := signaler.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id == "" {
		t.Fatal("server assigned an empty identity")
	}
	return signaler, id
}

func TestServerAssignsDistinctIdentities(t *testing.T) {
	server, url := startServer(t, ServerConfig{})
	_, alpha := dial(t, url)
	_, bravo := dial(t, url)
	if alpha == bravo {
		t.Fatalf("both clients got identity %s", alpha)
	}
	testutil.Eventually(t, func() bool {
		return len(server.Clients()) == 2
	}, waitTimeout, "server never listed both clients")
	if !slices.Contains(server.Clients(), alpha) || !slices.Contains(server.Clients(), bravo) {
		t.Errorf("clients = %v, want %s and %s", server.Clients(), alpha, bravo)
	}
}

func TestServerRelaysAndStampsSource(t *testing.T) {
	_, url := startServer(t, ServerConfig{})
	alphaSignaler, alpha := dial(t, url)
	bravoSignaler, bravo := dial(t, url)

	err := alphaSignaler.Send(context.Background(), transport.SignalMessage{
		Type:         transport.SignalOffer,
		Source:       "forged",
		Destination:  bravo,
		ConnectionID: "dc_1",
		Kind:         transport.KindData,
		SDP:          "v=0",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	message := testutil.RequireReceive(t, bravoSignaler.Messages(), waitTimeout, "offer never relayed")
	if message.Type != transport.SignalOffer || message.Source != alpha {
		t.Errorf("relayed %s from %s, want offer from %s", message.Type, message.Source, alpha)
	}
	if message.ConnectionID != "dc_1" || message.Kind != transport.KindData || message.SDP != "v=0" {
		t.Errorf("relayed fields changed: %+v", message)
	}
}

func TestServerReportsUnavailableDestination(t *testing.T) {
	_, url := startServer(t, ServerConfig{})
	signaler, self := dial(t, url)

	ctx := context.Background()
	// A bye to a missing peer is dropped silently.
	if err := signaler.Send(ctx, transport.SignalMessage{Type: transport.SignalBye, Destination: "ghost", ConnectionID: "mc_0"}); err != nil {
		t.Fatalf("Send bye: %v", err)
	}
	if err := signaler.Send(ctx, transport.SignalMessage{
		Type:         transport.SignalOffer,
		Destination:  "ghost",
		ConnectionID: "mc_1",
		Kind:         transport.KindMedia,
	}); err != nil {
		t.Fatalf("Send offer: %v", err)
	}

	message := testutil.RequireReceive(t, signaler.Messages(), waitTimeout, "no unavailable reply")
	if message.Type != transport.SignalUnavailable {
		t.Fatalf("got %s, want unavailable (bye must not be answered)", message.Type)
	}
	if message.Source != "ghost" || message.Destination != self || message.ConnectionID != "mc_1" {
		t.Errorf("unavailable reply = %+v", message)
	}
}

func TestServerNotifiesDisconnect(t *testing.T) {
	gone := make(chan transport.Identity, 1)
	server, url := startServer(t, ServerConfig{
		OnDisconnect: func(id transport.Identity) { gone <- id },
	})
	signaler, id := dial(t, url)
	signaler.Close()

	if got := testutil.RequireReceive(t, gone, waitTimeout, "OnDisconnect never ran"); got != id {
		t.Errorf("OnDisconnect(%s), want %s", got, id)
	}
	if clients := server.Clients(); len(clients) != 0 {
		t.Errorf("clients after disconnect = %v", clients)
	}
}

func TestServerCloseEndsClientStreams(t *testing.T) {
	server, url := startServer(t, ServerConfig{})
	signaler, _ := dial(t, url)
	server.Close()

	testutil.Eventually(t, func() bool {
		select {
		case _, ok := <-signaler.Messages():
			return !ok
		default:
			return false
		}
	}, waitTimeout, "client message stream stayed open after server Close")
}
