// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"slices"
	"sync"
)

// Directory is the in-memory membership table. Members of a space are
// kept in join order.
type Directory struct {
	mu     sync.Mutex
	spaces map[string][]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{spaces: make(map[string][]string)}
}

// Join adds id to space and returns the other members in join order.
// Joining twice is harmless; id keeps its original position.
func (d *Directory) Join(space, id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	members := d.spaces[space]
	others := make([]string, 0, len(members))
	for _, member := range members {
		if member != id {
			others = append(others, member)
		}
	}
	if !slices.Contains(members, id) {
		d.spaces[space] = append(members, id)
	}
	return others
}

// Leave removes id from space and reports whether it was a member. An
// emptied space is forgotten.
func (d *Directory) Leave(space, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(space, id)
}

// Forget removes id from every space, for identities whose signaling
// connection ended without a leave. It returns the spaces it was in.
func (d *Directory) Forget(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var spaces []string
	for space := range d.spaces {
		if d.removeLocked(space, id) {
			spaces = append(spaces, space)
		}
	}
	slices.Sort(spaces)
	return spaces
}

// Members returns the members of space in join order.
func (d *Directory) Members(space string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.spaces[space]...)
}

// Spaces returns the names of non-empty spaces, sorted.
func (d *Directory) Spaces() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.spaces))
	for space := range d.spaces {
		names = append(names, space)
	}
	slices.Sort(names)
	return names
}

func (d *Directory) removeLocked(space, id string) bool {
	members := d.spaces[space]
	index := slices.Index(members, id)
	if index < 0 {
		return false
	}
	members = slices.Delete(members, index, index+1)
	if len(members) == 0 {
		delete(d.spaces, space)
	} else {
		d.spaces[space] = members
	}
	return true
}
