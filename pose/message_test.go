// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package pose

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func closeVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if math.Abs(a[index]-b[index]) > tolerance {
			return false
		}
	}
	return true
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message Message
	}{
		{"camera", &CameraTransform{
			Position: Vector3{1.25, 1.6, -3},
			Rotation: Quaternion{0, 0.7071067811865476, 0, 0.7071067811865476},
		}},
		{"xr head only", &XRTransforms{
			HeadPosition: Vector3{0, 1.7, 0},
			HeadRotation: IdentityRotation,
		}},
		{"xr both hands", &XRTransforms{
			HeadPosition: Vector3{0.1, 1.65, 0.2},
			HeadRotation: Quaternion{0.1, 0.2, 0.3, 0.927},
			LeftHand:     &Transform{Position: Vector3{-0.3, 1.2, -0.4}, Rotation: IdentityRotation},
			RightHand:    &Transform{Position: Vector3{0.3, 1.1, -0.4}, Rotation: Quaternion{0, 0, 1, 0}},
		}},
		{"xr right hand only", &XRTransforms{
			HeadPosition: Vector3{0, 1.5, 0},
			HeadRotation: IdentityRotation,
			RightHand:    &Transform{Position: Vector3{0.2, 1, -0.2}, Rotation: IdentityRotation},
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			payload, err := Marshal(test.message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			parsed, err := Parse(payload)
			if err != nil {
				t.Fatalf("Parse(%s): %v", payload, err)
			}
			if parsed.Kind() != test.message.Kind() {
				t.Fatalf("kind = %s, want %s", parsed.Kind(), test.message.Kind())
			}
			var want, got State
			want.Apply(test.message)
			got.Apply(parsed)
			compareTransform(t, "camera", want.Camera, got.Camera)
			compareTransform(t, "head", want.Head, got.Head)
			compareTransform(t, "left hand", want.LeftHand, got.LeftHand)
			compareTransform(t, "right hand", want.RightHand, got.RightHand)
		})
	}
}

func compareTransform(t *testing.T, name string, want, got *Transform) {
	t.Helper()
	if (want == nil) != (got == nil) {
		t.Errorf("%s: present = %v, want %v", name, got != nil, want != nil)
		return
	}
	if want == nil {
		return
	}
	if !closeVector(want.Position[:], got.Position[:]) {
		t.Errorf("%s position = %v, want %v", name, got.Position, want.Position)
	}
	if !closeVector(want.Rotation[:], got.Rotation[:]) {
		t.Errorf("%s rotation = %v, want %v", name, got.Rotation, want.Rotation)
	}
}

func TestMarshalWireShape(t *testing.T) {
	payload, err := Marshal(&CameraTransform{Position: Vector3{0, 1, 0}, Rotation: IdentityRotation})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":0,"position":[0,1,0],"rotation":[0,0,0,1]}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}

	payload, err = Marshal(&XRTransforms{HeadPosition: Vector3{0, 1, 0}, HeadRotation: IdentityRotation})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want = `{"type":1,"headPosition":[0,1,0],"headRotation":[0,0,0,1]}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}
}

func TestParseHeadOnlyDisablesHands(t *testing.T) {
	message, err := Parse([]byte(`{"type":1,"headPosition":[0,1,0],"headRotation":[0,0,0,1]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var state State
	state.Apply(message)

	if state.Head == nil {
		t.Fatal("head disabled")
	}
	if state.Head.Position != (Vector3{0, 1, 0}) || state.Head.Rotation != (Quaternion{0, 0, 0, 1}) {
		t.Errorf("head = %+v", *state.Head)
	}
	if state.LeftHand != nil || state.RightHand != nil {
		t.Errorf("hands enabled: left=%v right=%v", state.LeftHand, state.RightHand)
	}
	if state.Camera != nil {
		t.Error("camera enabled after xr message")
	}
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	message, err := Parse([]byte(`{"type":0,"position":[1,2,3],"rotation":[0,0,0,1],"gaze":[0,0,-1]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	camera, ok := message.(*CameraTransform)
	if !ok {
		t.Fatalf("message = %T, want *CameraTransform", message)
	}
	if camera.Position != (Vector3{1, 2, 3}) {
		t.Errorf("position = %v", camera.Position)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, payload := range []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"type":"camera"}`,
		`{"type":2,"position":[0,0,0],"rotation":[0,0,0,1]}`,
		`{"type":0,"position":[0,0,0]}`,
		`{"type":0,"position":[0,0],"rotation":[0,0,0,1]}`,
		`{"type":0,"position":[0,0,0],"rotation":[0,0,0,1,0]}`,
		`{"type":1,"headPosition":[0,1,0]}`,
		`{"type":1,"headPosition":[0,1,0],"headRotation":[0,0,0,1],"leftHand":{"position":[0,0,0]}}`,
		`{"type":1,"headPosition":[0,1,0],"headRotation":[0,0,0,1],"rightHand":5}`,
	} {
		if _, err := Parse([]byte(payload)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Parse(%q) = %v, want ErrMalformedMessage", payload, err)
		}
	}
}
