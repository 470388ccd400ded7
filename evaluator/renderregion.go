// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"context"

	"github.com/cogentcore/rendercore/actioncache"
	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/logx"
	"github.com/cogentcore/rendercore/rcontext"
)

// RenderRegion is render_region (spec §4.3): given a node and a
// requested region, checks identity/pass-through, looks up the cache,
// plans the tiles that still need computing, recursively fetches
// inputs, allocates output, and invokes the effect.
func (e *Evaluator) RenderRegion(ctx context.Context, node effect.Node, args Args) ([]PlaneResult, Status, error) {
	if len(args.Planes) == 0 {
		return nil, Failed, errs.New(errs.KindInvalidRequest, "empty plane set", nil)
	}

	// Step 1: ensure RenderContext validity.
	rc := args.RC
	if rc == nil {
		rc = rcontext.New(rcontext.NewAbortSignal(), args.Time, args.View, args.MipLevel, node.Hash(), 0)
	}
	if rc.RefreshAborted() {
		return nil, AbortedStatus, errs.ErrAborted
	}

	// Step 2: detect node-hash mismatch, invalidate the action cache.
	cache := e.actionCache(node)
	hash := node.Hash()
	if staleHash := cache.Tag(); staleHash != hash {
		cache.InvalidateAll(hash)
		e.Store.EvictAllWithHash(staleHash)
	}

	// Step 3: render scale. If the node cannot work at the requested
	// mip level, fall back to level 0 and downscale in post-process.
	mip := args.MipLevel
	renderFullScaleThenDownscale := false
	if !node.SupportsRenderScale() && mip != 0 {
		renderFullScaleThenDownscale = true
		mip = 0
	}
	useScaleOneInputs := renderFullScaleThenDownscale && !node.SupportsMultiResolution()

	// Step 4: obtain RoD.
	rod, status, err := e.resolveRoD(ctx, node, cache, args, mip)
	if status != OK {
		return nil, status, err
	}
	if rod.IsEmpty() {
		return nil, OK, nil // empty RoD: ok, no planes mutated (spec §8)
	}

	// Step 5: identity check.
	if planes, status, err := e.checkIdentity(ctx, node, cache, rc, args, rod, mip); status != OK || planes != nil {
		return planes, status, err
	}

	// Step 6: plane pass-through.
	wantPlanes, passthroughPlanes, status, err := e.resolvePlanes(ctx, node, args, rc)
	if status != OK {
		return nil, status, err
	}

	// Step 7: transform concatenation.
	concat, undo := e.concatenateTransforms(node)
	defer undo()

	requested := args.Rect
	if requested.IsEmpty() {
		requested = geom.ToPixelEnclosing(rod, mip, 1)
	}
	canonicalRequest := geom.FromPixel(requested, mip, 1)
	if concat.node != node {
		canonicalRequest = concat.inverse.ApplyToRect(canonicalRequest)
	}

	// Step 8 (cross-plane consistency): a cache hit on one requested
	// plane is only safe to keep if every other plane requested in this
	// same call also hits; otherwise drop the hits found so far so the
	// render below produces a consistent set of planes (spec §4.3 step 8).
	if !args.BypassCache {
		e.evictInconsistentPlaneHits(concat.node, mip, args, wantPlanes, passthroughPlanes)
	}

	var results []PlaneResult
	for _, pr := range wantPlanes {
		res, status, err := e.renderOnePlane(ctx, concat.node, rc, args, pr, rod, mip, canonicalRequest, requested, renderFullScaleThenDownscale, useScaleOneInputs, passthroughPlanes)
		if status != OK {
			return nil, status, err
		}
		results = append(results, res)
	}
	return results, OK, nil
}

// resolveRoD implements spec §4.3 step 4: use the precomputed RoD if
// given, else consult the action cache / call the node, then apply the
// infinity heuristic.
func (e *Evaluator) resolveRoD(ctx context.Context, node effect.Node, cache *actioncache.Cache, args Args, mip int) (geom.Rect, Status, error) {
	if args.PrecomputedRoD != nil {
		return *args.PrecomputedRoD, OK, nil
	}
	if rod, ok := cache.GetRoD(args.Time, args.View, mip); ok {
		return rod, OK, nil
	}
	rod, err := node.RegionOfDefinition(ctx, args.Time, args.View, mip)
	if err != nil {
		return geom.Rect{}, Failed, errs.New(errs.KindPluginFailure, "region_of_definition failed", err)
	}
	if rod.IsInfinite() {
		rod = e.clipInfiniteRoD(ctx, node, args, mip, rod)
	}
	cache.SetRoD(args.Time, args.View, mip, rod)
	return rod, OK, nil
}

// clipInfiniteRoD applies the infinity heuristic of spec §4.3 step 4: if
// any side is infinite, clip to the union of upstream RoDs, falling back
// to the project default (here, a caller-supplied fallback rect baked
// into the node's RoD when every input is also infinite/unconnected).
func (e *Evaluator) clipInfiniteRoD(ctx context.Context, node effect.Node, args Args, mip int, rod geom.Rect) geom.Rect {
	union := geom.Empty()
	for _, in := range node.Inputs() {
		if in == nil {
			continue
		}
		inRod, err := in.RegionOfDefinition(ctx, args.Time, args.View, mip)
		if err != nil || inRod.IsInfinite() {
			continue
		}
		union = union.Union(inRod)
	}
	if union.IsEmpty() {
		logx.Logger.Warn("evaluator: infinite RoD with no finite upstream, using project default", "node_hash", node.Hash())
		return e.ProjectDefault
	}
	return union
}

// checkIdentity implements spec §4.3 step 5. A non-nil []PlaneResult or
// a non-OK status short-circuits RenderRegion; (nil, OK, nil) means
// "not identity, continue".
func (e *Evaluator) checkIdentity(ctx context.Context, node effect.Node, cache *actioncache.Cache, rc *rcontext.Context, args Args, rod geom.Rect, mip int) ([]PlaneResult, Status, error) {
	var id effect.Identity
	if idx, t, ok := cache.GetIdentity(args.Time, args.View, mip); ok {
		id = effect.Identity{InputIndex: idx, Time: t}
	} else {
		id = node.IsIdentity(ctx, args.Time, args.View, mip, rod)
		cache.SetIdentity(args.Time, args.View, mip, id.InputIndex, id.Time)
	}
	switch id.InputIndex {
	case effect.NotIdentity:
		return nil, OK, nil
	case effect.SelfAtOtherTime:
		if id.Time == args.Time {
			return nil, Failed, errs.New(errs.KindInternalInvariant, "identity to self at the same time", nil)
		}
		nextArgs := args
		nextArgs.Time = id.Time
		nextArgs.RC = rc.WithTime(id.Time)
		planes, status, err := e.RenderRegion(ctx, node, nextArgs)
		return planes, status, err
	default:
		inputs := node.Inputs()
		if id.InputIndex < 0 || id.InputIndex >= len(inputs) || inputs[id.InputIndex] == nil {
			return nil, Failed, errs.New(errs.KindMissingUpstream, "identity to unconnected input", nil)
		}
		nextArgs := args
		nextArgs.Time = id.Time
		nextArgs.RC = rc.WithTime(id.Time)
		planes, status, err := e.RenderRegion(ctx, inputs[id.InputIndex], nextArgs)
		return planes, status, err
	}
}


