// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package actioncache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/geom"
)

func TestRoDFirstWriteWins(t *testing.T) {
	c := New(1)
	first := geom.R(0, 0, 10, 10)
	c.SetRoD(1, 0, 0, first)
	c.SetRoD(1, 0, 0, geom.R(0, 0, 99, 99))

	got, ok := c.GetRoD(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestRoDMissReturnsOkFalse(t *testing.T) {
	c := New(1)
	_, ok := c.GetRoD(5, 0, 0)
	assert.False(t, ok)
}

func TestIdentityOverwritesAllowed(t *testing.T) {
	c := New(1)
	c.SetIdentity(1, 0, 0, 2, 1.5)
	idx, tm, ok := c.GetIdentity(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 1.5, tm)

	c.SetIdentity(1, 0, 0, 3, 2.5)
	idx, tm, ok = c.GetIdentity(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 2.5, tm)
}

func TestTimeDomainRoundTrip(t *testing.T) {
	c := New(1)
	_, _, ok := c.GetTimeDomain()
	assert.False(t, ok)

	c.SetTimeDomain(1, 100)
	first, last, ok := c.GetTimeDomain()
	require.True(t, ok)
	assert.Equal(t, 1.0, first)
	assert.Equal(t, 100.0, last)
}

func TestInvalidateAllClearsEverythingAndAdoptsNewTag(t *testing.T) {
	c := New(1)
	c.SetRoD(1, 0, 0, geom.R(0, 0, 10, 10))
	c.SetIdentity(1, 0, 0, 1, 1)
	c.SetTimeDomain(1, 10)

	c.InvalidateAll(2)

	assert.Equal(t, uint64(2), c.Tag())
	_, ok := c.GetRoD(1, 0, 0)
	assert.False(t, ok)
	_, _, ok = c.GetIdentity(1, 0, 0)
	assert.False(t, ok)
	_, _, ok = c.GetTimeDomain()
	assert.False(t, ok)
}
