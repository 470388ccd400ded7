// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logx wraps log/slog the way the teacher's logx package does:
// a single package-level logger whose default level is chosen per build
// tag (see level_default.go / level_debug.go), swappable by SetLogger
// for tests and for hosts that want structured output routed elsewhere.
package logx

import (
	"log/slog"
	"os"
)

// Logger is the render core's ambient logger. Subsystems log through
// this value rather than calling slog's package-level functions directly,
// so a host embedding the render core can redirect all of its output by
// calling SetLogger once at startup.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: defaultUserLevel}))

// SetLogger replaces the ambient logger.
func SetLogger(l *slog.Logger) {
	Logger = l
}
