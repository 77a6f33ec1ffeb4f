// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transporttest

import (
	"fmt"
	"sync"

	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// Compile-time interface check.
var _ transport.Endpoint = (*Endpoint)(nil)

// Endpoint is one identity on a Network.
type Endpoint struct {
	network *Network
	id      transport.Identity

	mu           sync.Mutex
	closed       bool
	onConnection func(transport.DataLink)
	onCall       func(transport.MediaLink)
	dataLinks    []*DataLink
	mediaLinks   []*MediaLink
}

func (e *Endpoint) ID() transport.Identity { return e.id }

func (e *Endpoint) OnConnection(handler func(transport.DataLink)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConnection = handler
}

func (e *Endpoint) OnCall(handler func(transport.MediaLink)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCall = handler
}

// Connect creates a data link to peer. The remote endpoint's handler
// receives its end on another goroutine; both ends open afterwards.
func (e *Endpoint) Connect(peer transport.Identity) (transport.DataLink, error) {
	if e.Closed() {
		return nil, transport.ErrClosed
	}
	e.network.record(Attempt{From: e.id, To: peer, Kind: transport.KindData})

	local := &DataLink{endpoint: e, peer: peer}
	e.trackData(local)

	remoteEndpoint := e.network.Endpoint(peer)
	if remoteEndpoint == nil {
		local.Fail(fmt.Errorf("%w: %s", transport.ErrPeerUnreachable, peer))
		return local, nil
	}
	remote := &DataLink{endpoint: remoteEndpoint, peer: e.id, remote: local}
	local.remote = remote
	remoteEndpoint.trackData(remote)

	go func() {
		remoteEndpoint.mu.Lock()
		handler := remoteEndpoint.onConnection
		remoteEndpoint.mu.Unlock()
		if handler == nil {
			return
		}
		handler(remote)
		remote.MarkOpen()
		local.MarkOpen()
	}()
	return local, nil
}

// Call places a call to peer. It opens once the callee answers.
func (e *Endpoint) Call(peer transport.Identity, stream transport.LocalStream) (transport.MediaLink, error) {
	if e.Closed() {
		return nil, transport.ErrClosed
	}
	e.network.record(Attempt{From: e.id, To: peer, Kind: transport.KindMedia})

	local := &MediaLink{endpoint: e, peer: peer, stream: stream}
	e.trackMedia(local)

	remoteEndpoint := e.network.Endpoint(peer)
	if remoteEndpoint == nil {
		local.Fail(fmt.Errorf("%w: %s", transport.ErrPeerUnreachable, peer))
		return local, nil
	}
	remote := &MediaLink{endpoint: remoteEndpoint, peer: e.id, inbound: true, remote: local}
	local.remote = remote
	remoteEndpoint.trackMedia(remote)

	go func() {
		remoteEndpoint.mu.Lock()
		handler := remoteEndpoint.onCall
		remoteEndpoint.mu.Unlock()
		if handler != nil {
			handler(remote)
		}
	}()
	return local, nil
}

// Close closes every link, notifying the remote ends, and leaves the
// network. Idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	dataLinks := append([]*DataLink(nil), e.dataLinks...)
	mediaLinks := append([]*MediaLink(nil), e.mediaLinks...)
	e.mu.Unlock()

	e.network.remove(e)
	for _, link := range dataLinks {
		link.Close()
	}
	for _, link := range mediaLinks {
		link.Close()
	}
	return nil
}

// Closed reports whether Close was called.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// DataLink returns the most recent data link between e and peer, in
// either direction, or nil.
func (e *Endpoint) DataLink(peer transport.Identity) *DataLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	for index := len(e.dataLinks) - 1; index >= 0; index-- {
		if e.dataLinks[index].peer == peer {
			return e.dataLinks[index]
		}
	}
	return nil
}

// MediaLink returns the most recent call between e and peer, in either
// direction, or nil.
func (e *Endpoint) MediaLink(peer transport.Identity) *MediaLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	for index := len(e.mediaLinks) - 1; index >= 0; index-- {
		if e.mediaLinks[index].peer == peer {
			return e.mediaLinks[index]
		}
	}
	return nil
}

func (e *Endpoint) trackData(link *DataLink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dataLinks = append(e.dataLinks, link)
}

func (e *Endpoint) trackMedia(link *MediaLink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mediaLinks = append(e.mediaLinks, link)
}
