// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syntheticmagus/manifold-meeting-space/lib/codec"
	"github.com/syntheticmagus/manifold-meeting-space/lib/netutil"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

const (
	// DefaultReadLimit caps one inbound frame. A vanilla-ICE SDP with a
	// full candidate list is a few kilobytes.
	DefaultReadLimit = 64 * 1024

	// DefaultPingPeriod is the keepalive interval.
	DefaultPingPeriod = 30 * time.Second

	writeWait   = 10 * time.Second
	sendBacklog = 64
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// ReadLimit caps a single frame in bytes. Zero means DefaultReadLimit.
	ReadLimit int64

	// PingPeriod is how often the server pings each client. A client
	// that misses two pings is dropped. Zero means DefaultPingPeriod.
	PingPeriod time.Duration

	// OnDisconnect, when set, runs after a client's socket closes.
	OnDisconnect func(id transport.Identity)
}

// Server relays signaling frames between connected clients.
type Server struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	readLimit    int64
	pingPeriod   time.Duration
	onDisconnect func(transport.Identity)
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	clients map[transport.Identity]*client
}

type client struct {
	id   transport.Identity
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

var errBackpressure = errors.New("signaling client send queue full")

func (c *client) trySend(frame []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewServer returns a Server with no clients.
func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = DefaultReadLimit
	}
	if config.PingPeriod <= 0 {
		config.PingPeriod = DefaultPingPeriod
	}
	return &Server{
		logger:       config.Logger,
		metrics:      config.Metrics,
		readLimit:    config.ReadLimit,
		pingPeriod:   config.PingPeriod,
		onDisconnect: config.OnDisconnect,
		upgrader: websocket.Upgrader{
			// Attendees are native clients, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[transport.Identity]*client),
	}
}

// Clients returns the connected identities, sorted.
func (s *Server) Clients() []transport.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]transport.Identity, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close drops every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// HandleWebSocket upgrades the request and serves the client until the
// socket closes.
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}

	cl := &client{
		id:   transport.Identity(uuid.NewString()),
		conn: conn,
		send: make(chan []byte, sendBacklog),
		done: make(chan struct{}),
	}
	open, err := codec.Marshal(transport.SignalMessage{Type: transport.SignalOpen, Destination: cl.id})
	if err != nil {
		s.logger.Error("encoding open frame", "error", err)
		conn.Close()
		return
	}
	cl.send <- open

	s.mu.Lock()
	s.clients[cl.id] = cl
	s.mu.Unlock()
	s.metrics.SignalingConnected()
	s.logger.Info("signaling client connected", "id", cl.id, "remote", c.Request.RemoteAddr)

	go s.writePump(cl)
	go s.readPump(cl)
}

func (s *Server) writePump(cl *client) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	defer cl.close()
	for {
		select {
		case <-cl.done:
			return
		case frame := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.logger.Debug("signaling write failed", "id", cl.id, "error", err)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("signaling ping failed", "id", cl.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) readPump(cl *client) {
	defer s.disconnect(cl)

	pongWait := 2 * s.pingPeriod
	cl.conn.SetReadLimit(s.readLimit)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := cl.conn.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("signaling read failed", "id", cl.id, "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		var message transport.SignalMessage
		if err := codec.Unmarshal(data, &message); err != nil {
			s.logger.Warn("dropping undecodable signal frame", "id", cl.id, "error", err)
			continue
		}
		s.route(cl, message)
	}
}

func (s *Server) route(from *client, message transport.SignalMessage) {
	switch message.Type {
	case transport.SignalOffer, transport.SignalAnswer, transport.SignalBye:
	default:
		s.logger.Debug("ignoring signal type from client", "id", from.id, "type", message.Type)
		return
	}
	message.Source = from.id

	s.mu.Lock()
	to := s.clients[message.Destination]
	s.mu.Unlock()

	if to != nil {
		if err := s.deliver(to, message); err == nil {
			s.metrics.SignalingRelayed(string(message.Type))
			return
		}
	}
	if message.Type == transport.SignalBye {
		return
	}
	s.deliver(from, transport.SignalMessage{
		Type:         transport.SignalUnavailable,
		Source:       message.Destination,
		Destination:  from.id,
		ConnectionID: message.ConnectionID,
		Kind:         message.Kind,
	})
}

func (s *Server) deliver(to *client, message transport.SignalMessage) error {
	frame, err := codec.Marshal(message)
	if err != nil {
		s.logger.Error("encoding signal frame", "type", message.Type, "error", err)
		return err
	}
	if err := to.trySend(frame); err != nil {
		s.logger.Warn("signal not delivered", "to", to.id, "type", message.Type, "error", err)
		return err
	}
	return nil
}

func (s *Server) disconnect(cl *client) {
	cl.close()
	s.mu.Lock()
	if s.clients[cl.id] == cl {
		delete(s.clients, cl.id)
	}
	s.mu.Unlock()
	s.metrics.SignalingDisconnected()
	s.logger.Info("signaling client disconnected", "id", cl.id)
	if s.onDisconnect != nil {
		s.onDisconnect(cl.id)
	}
}
