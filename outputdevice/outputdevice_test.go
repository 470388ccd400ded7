// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outputdevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopCodeString(t *testing.T) {
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", StopCode(99).String())
}

func TestDirectionValues(t *testing.T) {
	assert.Equal(t, Direction(0), Forward)
	assert.Equal(t, Direction(1), Backward)
}
