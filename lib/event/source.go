// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package event

// Source is the subscribe side of an Observable, handed to consumers
// that must not publish.
type Source[T any] interface {
	Add(callback func(T)) *Observer
	AddOnce(callback func(T)) *Observer
	Remove(handle *Observer) bool
}

// Signal is the subscribe side of a Latch.
type Signal interface {
	Add(callback func()) *Observer
	Remove(handle *Observer) bool
	Done() <-chan struct{}
	Fired() bool
}

// Compile-time interface checks.
var (
	_ Source[int] = (*Observable[int])(nil)
	_ Signal      = (*Latch)(nil)
)
