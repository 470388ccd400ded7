// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcontext implements the explicit RenderContext carried by
// reference through every render_region call (spec §3, §4.6, §9). The
// original implementation keeps this in thread-local storage; here it is
// an explicit value, created at the entry of an evaluation, inherited by
// recursive calls, and snapshotted into spawned tile workers.
package rcontext

import (
	"sync/atomic"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/geom"
)

// Age is the monotonic render-age identifier (GLOSSARY "Render-age").
type Age uint64

// AbortSignal is shared by every RenderContext spawned under one
// RenderEngine run. Abort flips aborted and NextAge advances the age, so
// any in-flight request captured at a previous age is discarded at the
// next cancellation check (spec §4.5 "Between aborts, the render-age
// counter is incremented").
type AbortSignal struct {
	aborted atomic.Bool
	age     atomic.Uint64
}

// NewAbortSignal returns a fresh signal at age 0, not aborted.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{}
}

// CurrentAge returns the signal's current render-age.
func (a *AbortSignal) CurrentAge() Age {
	return Age(a.age.Load())
}

// Abort marks the signal aborted. The caller is responsible for later
// calling NextAge once producers have drained, starting a fresh age.
func (a *AbortSignal) Abort() {
	a.aborted.Store(true)
}

// NextAge clears the aborted flag and advances to a new age, so contexts
// created after this call are not considered stale.
func (a *AbortSignal) NextAge() Age {
	a.aborted.Store(false)
	return Age(a.age.Add(1))
}

// IsAborted reports whether the signal is currently aborted.
func (a *AbortSignal) IsAborted() bool {
	return a.aborted.Load()
}

// Stale reports whether a context captured at capturedAge should be
// treated as cancelled: either the signal is aborted, or a newer age has
// already started.
func (a *AbortSignal) Stale(capturedAge Age) bool {
	return a.aborted.Load() || Age(a.age.Load()) != capturedAge
}

// Mode distinguishes a sequential (render-to-disk/playback) request from
// an interactive one, the "sequential-vs-interactive flag" of spec §3.
type Mode int

const (
	Interactive Mode = iota
	Sequential
)

// Context is the per-evaluation-thread state of spec §3. It is created
// at the entry of render_region and torn down at exit; spawned tile
// workers receive a Snapshot and install the copy on their own stack.
type Context struct {
	Time     float64
	View     int
	MipLevel int
	NodeHash uint64
	RotoAge  uint64

	Abort       *AbortSignal
	CapturedAge Age
	CanAbort    bool
	Mode        Mode

	Identity *effect.Identity
	RoD      geom.Rect

	// RoI maps a downstream node to the canonical region it requested of
	// the node this Context was created for.
	RoI map[effect.Node]geom.Rect

	FirstFrame, LastFrame float64

	// HeldImages keeps cache entries alive (keep-alive roots, spec §3)
	// for the duration of this evaluation so a concurrent evictor cannot
	// free pixels this thread still needs. Entries are opaque handles
	// from the store package; rcontext does not interpret them.
	HeldImages []any

	// abortedMemo caches the Stale() verdict for this context's
	// CapturedAge so repeated recursive checks inside one frame do not
	// re-touch the atomics (SPEC_FULL "aborted() recursive short-circuit
	// cache", grounded on EffectInstance.cpp's per-render-age abort memo).
	abortedMemo *bool
}

// New creates a fresh Context for the entry of an evaluation.
func New(abort *AbortSignal, time float64, view, mip int, nodeHash uint64, rotoAge uint64) *Context {
	return &Context{
		Time:        time,
		View:        view,
		MipLevel:    mip,
		NodeHash:    nodeHash,
		RotoAge:     rotoAge,
		Abort:       abort,
		CapturedAge: abort.CurrentAge(),
		CanAbort:    true,
		RoI:         map[effect.Node]geom.Rect{},
	}
}

// IsAborted reports whether this context's render-age has been
// cancelled, memoizing the answer in the context until RefreshAborted
// clears it (a Snapshot starts with no memo).
func (c *Context) IsAborted() bool {
	if !c.CanAbort {
		return false
	}
	if c.abortedMemo != nil {
		return *c.abortedMemo
	}
	v := c.Abort.Stale(c.CapturedAge)
	c.abortedMemo = &v
	return v
}

// RefreshAborted clears the memoized verdict and re-samples the abort
// signal. A single RenderContext is shared across every sub-rectangle of
// a render_tile loop and every wake of a tri-map wait, so IsAborted's
// per-context memo would otherwise hide an abort that arrives partway
// through that loop; callers at those step boundaries call this instead
// of IsAborted so cancellation is observed promptly rather than only
// once per Context lifetime.
func (c *Context) RefreshAborted() bool {
	c.abortedMemo = nil
	return c.IsAborted()
}

// Snapshot copies the context for a spawned tile worker. The copy shares
// the same Abort signal and captured age (so cancellation still reaches
// it) but gets its own RoI map and held-image list, since those are
// per-recursion-path state the worker must not mutate concurrently with
// its spawner.
func (c *Context) Snapshot() *Context {
	cp := *c
	cp.RoI = make(map[effect.Node]geom.Rect, len(c.RoI))
	for k, v := range c.RoI {
		cp.RoI[k] = v
	}
	cp.HeldImages = append([]any(nil), c.HeldImages...)
	cp.abortedMemo = nil
	return &cp
}

// WithTime returns a copy of c re-entered at a different time, used by
// the identity-on-self-at-another-time path (spec §4.3 step 5) and by
// recursive render_region calls into inputs.
func (c *Context) WithTime(t float64) *Context {
	cp := c.Snapshot()
	cp.Time = t
	return cp
}

// Hold appends an image handle to the keep-alive list.
func (c *Context) Hold(h any) {
	c.HeldImages = append(c.HeldImages, h)
}
