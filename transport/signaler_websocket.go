// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syntheticmagus/manifold-meeting-space/lib/codec"
	"github.com/syntheticmagus/manifold-meeting-space/lib/netutil"
)

// Compile-time interface check.
var _ Signaler = (*WebSocketSignaler)(nil)

// signalWriteTimeout bounds a single frame write to the signaling server.
const signalWriteTimeout = 10 * time.Second

// WebSocketSignaler talks to the signaling server over a websocket.
// Frames are CBOR-encoded SignalMessages in binary messages.
type WebSocketSignaler struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	messages chan SignalMessage
	assigned chan Identity
	done     chan struct{} // closed when readPump exits
	stop     chan struct{} // closed by Close

	closeOnce sync.Once
}

// DialSignaler connects to the signaling server at url. The identity is
// not known until Open returns.
func DialSignaler(ctx context.Context, url string, logger *slog.Logger) (*WebSocketSignaler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing signaling server %s: %w (HTTP %d)", url, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing signaling server %s: %w", url, err)
	}

	signaler := &WebSocketSignaler{
		conn:     conn,
		logger:   logger,
		messages: make(chan SignalMessage, 64),
		assigned: make(chan Identity, 1),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go signaler.readPump()
	return signaler, nil
}

// Open waits for the server to announce this endpoint's identity.
func (s *WebSocketSignaler) Open(ctx context.Context) (Identity, error) {
	select {
	case id := <-s.assigned:
		// Keep it available for repeated calls.
		s.assigned <- id
		return id, nil
	case <-s.done:
		return "", fmt.Errorf("signaling connection closed before identity was assigned: %w", ErrClosed)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Send writes message as one binary frame.
func (s *WebSocketSignaler) Send(_ context.Context, message SignalMessage) error {
	data, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding %s signal: %w", message.Type, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing %s signal: %w", message.Type, err)
	}
	return nil
}

// Messages returns the inbound message channel.
func (s *WebSocketSignaler) Messages() <-chan SignalMessage {
	return s.messages
}

// Close sends a close frame and tears down the socket.
func (s *WebSocketSignaler) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	return nil
}

func (s *WebSocketSignaler) readPump() {
	defer close(s.messages)
	defer close(s.done)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("signaling connection ended", "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		var message SignalMessage
		if err := codec.Unmarshal(data, &message); err != nil {
			s.logger.Warn("dropping undecodable signal frame", "error", err)
			continue
		}
		if message.Type == SignalOpen {
			select {
			case s.assigned <- message.Destination:
			default:
			}
			continue
		}
		select {
		case s.messages <- message:
		case <-s.stop:
			return
		}
	}
}
