// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logx

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerReplacesAmbientLogger(t *testing.T) {
	orig := Logger
	t.Cleanup(func() { Logger = orig })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	SetLogger(custom)

	Logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestDefaultUserLevelIsInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, defaultUserLevel)
}
