// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package transporttest provides an in-memory transport.Endpoint network
// for testing sessions, attendees, and space controllers without
// WebRTC.
//
// Links between endpoints on one [Network] behave like the real
// transport: Connect and Call return connecting links and the outcome
// arrives asynchronously. A data link opens on both ends once the
// remote endpoint's connection handler has received it; a call opens
// once the callee answers. An endpoint with no connection handler never
// accepts, which leaves the caller's link connecting forever (useful for
// timeout tests). Connecting to an identity not on the network fails the
// link with transport.ErrPeerUnreachable.
//
// Every link is reachable from the test through [Endpoint.DataLink] and
// [Endpoint.MediaLink], and can be driven directly with Open, Terminate,
// Deliver, and EmitStream.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

// Network is a set of in-memory endpoints that can reach each other.
type Network struct {
	mu        sync.Mutex
	nextID    int
	endpoints map[transport.Identity]*Endpoint
	openErr   error
	attempts  []Attempt
}

// Attempt records one Connect or Call.
type Attempt struct {
	From transport.Identity
	To   transport.Identity
	Kind transport.LinkKind
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[transport.Identity]*Endpoint)}
}

// FailNextOpen makes the next Open (or Opener call) fail with err.
func (n *Network) FailNextOpen(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.openErr = err
}

// Open registers an endpoint as id. An empty id is replaced by a
// generated "peer-N".
func (n *Network) Open(id transport.Identity) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.openErr; err != nil {
		n.openErr = nil
		return nil, err
	}
	if id == "" {
		n.nextID++
		id = transport.Identity(fmt.Sprintf("peer-%d", n.nextID))
	}
	if _, taken := n.endpoints[id]; taken {
		return nil, fmt.Errorf("transporttest: identity %q already open", id)
	}
	endpoint := &Endpoint{network: n, id: id}
	n.endpoints[id] = endpoint
	return endpoint, nil
}

// Opener returns a transport.Opener producing endpoints with generated
// identities.
func (n *Network) Opener() transport.Opener {
	return n.OpenerWithID("")
}

// OpenerWithID returns a transport.Opener that opens id.
func (n *Network) OpenerWithID(id transport.Identity) transport.Opener {
	return func(ctx context.Context) (transport.Endpoint, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		endpoint, err := n.Open(id)
		if err != nil {
			return nil, err
		}
		return endpoint, nil
	}
}

// Endpoint returns the open endpoint registered as id, or nil.
func (n *Network) Endpoint(id transport.Identity) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoints[id]
}

// Attempts returns the identities from has connected to (kind data) or
// called (kind media), in order.
func (n *Network) Attempts(from transport.Identity, kind transport.LinkKind) []transport.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	var targets []transport.Identity
	for _, attempt := range n.attempts {
		if attempt.From == from && attempt.Kind == kind {
			targets = append(targets, attempt.To)
		}
	}
	return targets
}

func (n *Network) record(attempt Attempt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts = append(n.attempts, attempt)
}

func (n *Network) remove(endpoint *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.endpoints[endpoint.id] == endpoint {
		delete(n.endpoints, endpoint.id)
	}
}
