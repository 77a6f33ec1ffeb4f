// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the registry.
type Error struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the server's error text, or the status text when the
	// body carried none.
	Message string
}

func (err *Error) Error() string {
	return fmt.Sprintf("registry: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a registry 404.
func IsNotFound(err error) bool {
	var registryError *Error
	return errors.As(err, &registryError) && registryError.StatusCode == 404
}

// errorBody is the JSON shape of every registry error response.
type errorBody struct {
	Error string `json:"error"`
}
