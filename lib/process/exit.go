// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "binary: err" to stderr and exits with code 1. Use it in
// main() for errors from run().
func Fatal(binary string, err error) {
	Report(os.Stderr, binary, err)
	os.Exit(1)
}

// Report writes the Fatal line to w without exiting.
func Report(w io.Writer, binary string, err error) {
	fmt.Fprintf(w, "%s: %v\n", binary, err)
}
