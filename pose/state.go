// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package pose

// State is the displayable pose of one attendee. A nil transform is
// disabled. Camera is set only after a camera message; Head and the
// hands only after an XR message.
type State struct {
	Camera    *Transform
	Head      *Transform
	LeftHand  *Transform
	RightHand *Transform
}

// Apply replaces the state with the pose carried by message. The
// variant not carried is cleared. The state never aliases message.
func (s *State) Apply(message Message) {
	switch m := message.(type) {
	case *CameraTransform:
		*s = State{Camera: &Transform{Position: m.Position, Rotation: m.Rotation}}
	case *XRTransforms:
		*s = State{
			Head:      &Transform{Position: m.HeadPosition, Rotation: m.HeadRotation},
			LeftHand:  cloneTransform(m.LeftHand),
			RightHand: cloneTransform(m.RightHand),
		}
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		Camera:    cloneTransform(s.Camera),
		Head:      cloneTransform(s.Head),
		LeftHand:  cloneTransform(s.LeftHand),
		RightHand: cloneTransform(s.RightHand),
	}
}

// Immersive reports whether the last applied message was an XR message.
func (s State) Immersive() bool { return s.Head != nil }

func cloneTransform(t *Transform) *Transform {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
