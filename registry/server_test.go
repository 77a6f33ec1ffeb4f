// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server := NewServer(ServerConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	router := gin.New()
	server.Routes(router)
	httpServer := httptest.NewServer(router)
	t.Cleanup(httpServer.Close)

	// No trailing slash: the client adds it.
	client, err := NewClient(ClientConfig{URL: httpServer.URL, HTTPClient: httpServer.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return server, client
}

func TestClientJoinAndLeave(t *testing.T) {
	server, client := newTestServer(t)
	ctx := context.Background()

	roster, err := client.Join(ctx, "lobby", "alpha")
	if err != nil {
		t.Fatalf("Join(alpha): %v", err)
	}
	if len(roster) != 0 {
		t.Errorf("first roster = %v, want empty", roster)
	}
	if _, err := client.Join(ctx, "lobby", "bravo"); err != nil {
		t.Fatalf("Join(bravo): %v", err)
	}
	roster, err = client.Join(ctx, "lobby", "charlie")
	if err != nil {
		t.Fatalf("Join(charlie): %v", err)
	}
	if !slices.Equal(roster, []string{"alpha", "bravo"}) {
		t.Errorf("roster = %v, want [alpha bravo]", roster)
	}

	if err := client.Leave(ctx, "lobby", "alpha"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	members, err := client.Members(ctx, "lobby")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if !slices.Equal(members, []string{"bravo", "charlie"}) {
		t.Errorf("members = %v, want [bravo charlie]", members)
	}
	if !slices.Equal(server.Directory().Members("lobby"), members) {
		t.Error("client view disagrees with directory")
	}

	err = client.Leave(ctx, "lobby", "alpha")
	if !IsNotFound(err) {
		t.Errorf("second Leave = %v, want 404", err)
	}
}

func TestServerRejectsIncompleteBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewServer(ServerConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Routes(router)

	for _, body := range []string{`{"space":"lobby"}`, `{"id":"a"}`, `not json`} {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("POST /join %s = %d, want 400", body, recorder.Code)
		}
	}
}

func TestClientErrorCarriesServerMessage(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"draining"}`)
	}))
	defer httpServer.Close()
	client, err := NewClient(ClientConfig{URL: httpServer.URL + "/", HTTPClient: httpServer.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Join(context.Background(), "lobby", "a")
	var registryError *Error
	if !errors.As(err, &registryError) {
		t.Fatalf("Join = %v, want *Error", err)
	}
	if registryError.StatusCode != http.StatusServiceUnavailable || registryError.Message != "draining" {
		t.Errorf("error = %+v", registryError)
	}
}

func TestClientDropsSelfFromRoster(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/join" || r.Method != http.MethodPost {
			t.Errorf("request %s %s, want POST /join", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"ids":["a","self","b"]}`)
	}))
	defer httpServer.Close()
	client, err := NewClient(ClientConfig{URL: httpServer.URL, HTTPClient: httpServer.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	roster, err := client.Join(context.Background(), "lobby", "self")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !slices.Equal(roster, []string{"a", "b"}) {
		t.Errorf("roster = %v, want [a b]", roster)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://registry/", "://"} {
		if _, err := NewClient(ClientConfig{URL: raw}); err == nil {
			t.Errorf("NewClient(%q) succeeded", raw)
		}
	}
}
