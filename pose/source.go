// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package pose

import (
	"math"
	"sync"
	"time"

	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
)

// Source supplies the local attendee's pose at each broadcast tick.
type Source interface {
	Current() Message
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Message

func (f SourceFunc) Current() Message { return f() }

// DefaultCameraPosition is eye height above the origin.
var DefaultCameraPosition = Vector3{0, 1.6, 0}

// StaticCamera always reports the same camera transform.
func StaticCamera(position Vector3, rotation Quaternion) Source {
	return SourceFunc(func() Message {
		return &CameraTransform{Position: position, Rotation: rotation}
	})
}

// DefaultSource is a camera at DefaultCameraPosition looking down +Z.
func DefaultSource() Source {
	return StaticCamera(DefaultCameraPosition, IdentityRotation)
}

// Orbit walks a camera around a circle in the horizontal plane, facing
// the center. Headless attendees use it so receivers see motion.
type Orbit struct {
	clock  clock.Clock
	center Vector3
	radius float64
	period time.Duration
	start  time.Time
}

// NewOrbit starts an orbit at the current clock time. A non-positive
// period yields a stationary camera on the circle.
func NewOrbit(c clock.Clock, center Vector3, radius float64, period time.Duration) *Orbit {
	return &Orbit{clock: c, center: center, radius: radius, period: period, start: c.Now()}
}

// Current returns the camera transform for the present moment.
func (o *Orbit) Current() Message {
	var angle float64
	if o.period > 0 {
		elapsed := o.clock.Now().Sub(o.start)
		angle = 2 * math.Pi * float64(elapsed%o.period) / float64(o.period)
	}
	position := Vector3{
		o.center[0] + o.radius*math.Sin(angle),
		o.center[1],
		o.center[2] + o.radius*math.Cos(angle),
	}
	// The identity rotation looks down +Z, away from the center at angle 0.
	return &CameraTransform{Position: position, Rotation: yaw(angle + math.Pi)}
}

// yaw returns the rotation about +Y by angle radians.
func yaw(angle float64) Quaternion {
	half := angle / 2
	return Quaternion{0, math.Sin(half), 0, math.Cos(half)}
}

// Tracker is a Source whose pose is pushed by an input layer, for
// example an XR runtime reporting head and controller poses.
type Tracker struct {
	mu      sync.Mutex
	current Message
}

// NewTracker returns a tracker reporting initial until the first Set.
func NewTracker(initial Message) *Tracker {
	return &Tracker{current: initial}
}

// Set replaces the reported pose.
func (t *Tracker) Set(message Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = message
}

func (t *Tracker) Current() Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
