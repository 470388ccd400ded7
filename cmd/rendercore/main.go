// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rendercore drives a render-to-disk run from the command line
// (spec §6 "CLI surface"): project file or script, an optional repeated
// writer-name list, an optional frame-range override, an optional
// worker-thread-count override, and a background-mode flag.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeForError(err))
	}
}
