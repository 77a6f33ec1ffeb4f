// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package pose

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned by Parse for payloads that are not a
// well-formed transform message.
var ErrMalformedMessage = errors.New("malformed transform message")

// Kind is the wire discriminator.
type Kind int

const (
	KindCamera Kind = 0
	KindXR     Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindXR:
		return "xr"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Vector3 is a position, encoded as a three-element array.
type Vector3 [3]float64

// Quaternion is a rotation in x, y, z, w order, encoded as a
// four-element array.
type Quaternion [4]float64

// IdentityRotation is the quaternion for no rotation.
var IdentityRotation = Quaternion{0, 0, 0, 1}

// UnmarshalJSON requires exactly three components.
func (v *Vector3) UnmarshalJSON(data []byte) error {
	return decodeComponents(data, v[:])
}

// UnmarshalJSON requires exactly four components.
func (q *Quaternion) UnmarshalJSON(data []byte) error {
	return decodeComponents(data, q[:])
}

func decodeComponents(data []byte, into []float64) error {
	var components []float64
	if err := json.Unmarshal(data, &components); err != nil {
		return err
	}
	if len(components) != len(into) {
		return fmt.Errorf("want %d components, got %d", len(into), len(components))
	}
	copy(into, components)
	return nil
}

// Transform is a position and rotation.
type Transform struct {
	Position Vector3    `json:"position"`
	Rotation Quaternion `json:"rotation"`
}

// Message is a transform message: *CameraTransform or *XRTransforms.
type Message interface {
	Kind() Kind
	isMessage()
}

// CameraTransform is the pose of a non-immersive viewer.
type CameraTransform struct {
	Position Vector3
	Rotation Quaternion
}

func (*CameraTransform) Kind() Kind { return KindCamera }
func (*CameraTransform) isMessage() {}

// XRTransforms is the pose of an immersive viewer. A nil hand is not
// tracked.
type XRTransforms struct {
	HeadPosition Vector3
	HeadRotation Quaternion
	LeftHand     *Transform
	RightHand    *Transform
}

func (*XRTransforms) Kind() Kind { return KindXR }
func (*XRTransforms) isMessage() {}

// wireMessage is the union of both variants as it appears on the wire.
type wireMessage struct {
	Type         *Kind       `json:"type"`
	Position     *Vector3    `json:"position,omitempty"`
	Rotation     *Quaternion `json:"rotation,omitempty"`
	HeadPosition *Vector3    `json:"headPosition,omitempty"`
	HeadRotation *Quaternion `json:"headRotation,omitempty"`
	LeftHand     *wireHand   `json:"leftHand,omitempty"`
	RightHand    *wireHand   `json:"rightHand,omitempty"`
}

type wireHand struct {
	Position *Vector3    `json:"position"`
	Rotation *Quaternion `json:"rotation"`
}

// Marshal encodes message for the data channel.
func Marshal(message Message) ([]byte, error) {
	var wire wireMessage
	switch m := message.(type) {
	case *CameraTransform:
		kind := KindCamera
		wire.Type = &kind
		wire.Position = &m.Position
		wire.Rotation = &m.Rotation
	case *XRTransforms:
		kind := KindXR
		wire.Type = &kind
		wire.HeadPosition = &m.HeadPosition
		wire.HeadRotation = &m.HeadRotation
		wire.LeftHand = handToWire(m.LeftHand)
		wire.RightHand = handToWire(m.RightHand)
	default:
		return nil, fmt.Errorf("pose: cannot marshal %T", message)
	}
	return json.Marshal(&wire)
}

func handToWire(hand *Transform) *wireHand {
	if hand == nil {
		return nil
	}
	return &wireHand{Position: &hand.Position, Rotation: &hand.Rotation}
}

// Parse decodes a data channel payload. Every failure wraps
// ErrMalformedMessage.
func Parse(payload []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if wire.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	switch *wire.Type {
	case KindCamera:
		if wire.Position == nil || wire.Rotation == nil {
			return nil, fmt.Errorf("%w: camera transform needs position and rotation", ErrMalformedMessage)
		}
		return &CameraTransform{Position: *wire.Position, Rotation: *wire.Rotation}, nil

	case KindXR:
		if wire.HeadPosition == nil || wire.HeadRotation == nil {
			return nil, fmt.Errorf("%w: xr transforms need headPosition and headRotation", ErrMalformedMessage)
		}
		left, err := handFromWire("leftHand", wire.LeftHand)
		if err != nil {
			return nil, err
		}
		right, err := handFromWire("rightHand", wire.RightHand)
		if err != nil {
			return nil, err
		}
		return &XRTransforms{
			HeadPosition: *wire.HeadPosition,
			HeadRotation: *wire.HeadRotation,
			LeftHand:     left,
			RightHand:    right,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformedMessage, int(*wire.Type))
	}
}

func handFromWire(field string, hand *wireHand) (*Transform, error) {
	if hand == nil {
		return nil, nil
	}
	if hand.Position == nil || hand.Rotation == nil {
		return nil, fmt.Errorf("%w: %s needs position and rotation", ErrMalformedMessage, field)
	}
	return &Transform{Position: *hand.Position, Rotation: *hand.Rotation}, nil
}
