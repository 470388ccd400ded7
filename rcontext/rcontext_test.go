// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/geom"
)

func TestAbortSignalStaleAcrossAges(t *testing.T) {
	sig := NewAbortSignal()
	age := sig.CurrentAge()
	assert.False(t, sig.Stale(age))

	sig.Abort()
	assert.True(t, sig.Stale(age))
	assert.True(t, sig.IsAborted())

	next := sig.NextAge()
	assert.False(t, sig.IsAborted())
	assert.NotEqual(t, age, next)
	assert.True(t, sig.Stale(age), "a context captured at the old age stays stale after NextAge")
	assert.False(t, sig.Stale(next))
}

func TestContextIsAbortedMemoizes(t *testing.T) {
	sig := NewAbortSignal()
	ctx := New(sig, 1, 0, 0, 0, 0)
	require.False(t, ctx.IsAborted())

	sig.Abort()
	// memoized false from the first call must not flip just because the
	// signal changed underneath an already-created context's memo.
	assert.False(t, ctx.IsAborted())
}

func TestRefreshAbortedResamplesPastAMemoizedFalse(t *testing.T) {
	sig := NewAbortSignal()
	ctx := New(sig, 1, 0, 0, 0, 0)
	require.False(t, ctx.IsAborted())

	sig.Abort()
	// a plain IsAborted() still returns the stale memoized false...
	assert.False(t, ctx.IsAborted())
	// ...but RefreshAborted clears the memo and observes the real signal,
	// the way a render_tile loop boundary must.
	assert.True(t, ctx.RefreshAborted())
	assert.True(t, ctx.IsAborted(), "the refreshed verdict is itself memoized until the next RefreshAborted")
}

func TestContextCanAbortFalseNeverReportsAborted(t *testing.T) {
	sig := NewAbortSignal()
	ctx := New(sig, 1, 0, 0, 0, 0)
	ctx.CanAbort = false
	sig.Abort()
	assert.False(t, ctx.IsAborted())
}

func TestSnapshotCopiesRoIIndependently(t *testing.T) {
	sig := NewAbortSignal()
	ctx := New(sig, 1, 0, 0, 0, 0)
	var fakeNode effect.Node
	ctx.RoI[fakeNode] = geom.R(0, 0, 1, 1)
	ctx.Hold("root")

	snap := ctx.Snapshot()
	snap.RoI[fakeNode] = geom.R(0, 0, 2, 2)
	snap.Hold("child")

	assert.Equal(t, geom.R(0, 0, 1, 1), ctx.RoI[fakeNode])
	assert.Equal(t, geom.R(0, 0, 2, 2), snap.RoI[fakeNode])
	assert.Len(t, ctx.HeldImages, 1)
	assert.Len(t, snap.HeldImages, 2)
}

func TestWithTimeChangesOnlyTime(t *testing.T) {
	sig := NewAbortSignal()
	ctx := New(sig, 1, 2, 0, 7, 0)
	ctx.View = 2
	re := ctx.WithTime(5)
	assert.Equal(t, float64(5), re.Time)
	assert.Equal(t, ctx.View, re.View)
	assert.Equal(t, ctx.NodeHash, re.NodeHash)
}
