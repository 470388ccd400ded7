// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evaluator implements render_region (spec §4.3), the recursive
// pull engine at the center of the render core. Grounded on
// original_source/Engine/EffectInstance.cpp's renderRoIInternal and its
// identity/RoD/cache-lookup preamble, rewritten as explicit status
// returns instead of exceptions (spec §9).
package evaluator

import (
	"sync"
	"sync/atomic"

	"github.com/cogentcore/rendercore/actioncache"
	"github.com/cogentcore/rendercore/diskcache"
	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/rcontext"
	"github.com/cogentcore/rendercore/store"
	"github.com/cogentcore/rendercore/tiledispatcher"
)

// Status is the three-way outcome of RenderRegion (spec §4.3, §9: the
// three are distinct because Aborted must never set a node's
// render-failed flag).
type Status int

const (
	OK Status = iota
	AbortedStatus
	Failed
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case AbortedStatus:
		return "aborted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// PlaneRequest is one requested plane and the minimum bit depth the
// caller will accept.
type PlaneRequest struct {
	Plane    imagekey.Plane
	BitDepth int
}

// Args is the render_region argument bundle (spec §4.3 "Args").
type Args struct {
	Time           float64
	View           int
	MipLevel       int
	Rect           geom.PixelRect // zero value means "whole RoD"
	Planes         []PlaneRequest
	BypassCache    bool
	PrecomputedRoD *geom.Rect
	HeldInputs     []*store.Image

	// RC is the caller's RenderContext, reused for recursive calls and
	// created fresh when nil (entry point of an evaluation, spec §4.3
	// step 1 "Ensure RenderContext validity").
	RC *rcontext.Context
}

// PlaneResult is one rendered/returned plane.
type PlaneResult struct {
	Plane imagekey.Plane
	Image *store.Image
	Rect  geom.PixelRect
}

// MemoryPressure reports whether the store is under enough memory
// pressure that the evaluator should release cached partial results and
// plan the full rectangle instead of transitively pinning a level per
// frame in memory (spec §4.3 step 9). New installs one that always
// reports false; a caller may replace Evaluator.MemPressure with its own
// check. The evaluator itself has no opinion on what "pressure" means.
type MemoryPressure func() bool

// Evaluator is the recursive pull engine. It holds no per-render state;
// all of that lives in Args/RenderContext, so one Evaluator can service
// many concurrent renders.
type Evaluator struct {
	Store       *store.Store
	Dispatcher  *tiledispatcher.Dispatcher
	MemPressure MemoryPressure

	// DiskCache is the persistent on-disk image cache of spec §6. Left
	// nil (the default), render_region consults only the in-memory
	// Store; a host that wants results to survive across processes
	// opens one with diskcache.Open and assigns it here.
	DiskCache *diskcache.Cache

	// ProjectDefault is the fallback region an infinite RoD with no
	// resolvable finite upstream clips to (spec §4.3 step 4, §9 Open
	// Question; decision recorded in DESIGN.md). A host sets this from
	// its resolved config.Config.DefaultProject; it defaults to 1080p.
	ProjectDefault geom.Rect

	bytesPerPixel func(imagekey.Components, int) int

	caches   map[effect.Node]*actioncache.Cache
	cachesMu sync.Mutex
	ownerSeq atomic.Int64
}

// New returns an Evaluator backed by store s and tile dispatcher d.
func New(s *store.Store, d *tiledispatcher.Dispatcher) *Evaluator {
	return &Evaluator{
		Store:          s,
		Dispatcher:     d,
		MemPressure:    func() bool { return false },
		ProjectDefault: geom.R(0, 0, 1920, 1080),
		bytesPerPixel:  defaultBytesPerPixel,
		caches:         map[effect.Node]*actioncache.Cache{},
	}
}

// SetProjectDefault updates ProjectDefault to rect and evicts every
// Store entry whose RoD was clipped to the old project default by
// clipInfiniteRoD (spec §4.3 step 8 "RoD-dependent-on-project-format
// entries whose project format has since changed are evicted"). An
// image's RoD equaling the stale ProjectDefault is the only signal
// available that it was project-format-dependent rather than genuinely
// finite at that exact rectangle.
func (e *Evaluator) SetProjectDefault(rect geom.Rect) {
	old := e.ProjectDefault
	e.ProjectDefault = rect
	if old == rect {
		return
	}
	e.Store.EvictWhere(func(_ imagekey.Key, img *store.Image) bool {
		return img.RoD == old
	})
}

func defaultBytesPerPixel(c imagekey.Components, bitDepth int) int {
	n := 1
	switch c {
	case imagekey.ComponentsAlpha:
		n = 1
	case imagekey.ComponentsRGB:
		n = 3
	case imagekey.ComponentsRGBA:
		n = 4
	}
	bytes := bitDepth / 8
	if bytes < 1 {
		bytes = 1
	}
	return n * bytes
}

func (e *Evaluator) actionCache(n effect.Node) *actioncache.Cache {
	e.cachesMu.Lock()
	defer e.cachesMu.Unlock()
	c, ok := e.caches[n]
	if !ok {
		c = actioncache.New(n.Hash())
		e.caches[n] = c
	}
	return c
}

func (e *Evaluator) nextOwner() store.OwnerID {
	return store.OwnerID(e.ownerSeq.Add(1))
}
