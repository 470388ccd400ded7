// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"context"
	"errors"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/rcontext"
	"github.com/cogentcore/rendercore/store"
)

// renderOnePlane implements spec §4.3 steps 8 through 16 for a single
// requested plane: cache lookup, tile planning, recursive input fetch,
// output allocation, tile dispatch, and post-processing.
func (e *Evaluator) renderOnePlane(
	ctx context.Context,
	node effect.Node,
	rc *rcontext.Context,
	args Args,
	pr PlaneRequest,
	rod geom.Rect,
	mip int,
	canonicalRequest geom.Rect,
	pixelRequest geom.PixelRect,
	renderFullScaleThenDownscale bool,
	useScaleOneInputs bool,
	pass effect.PassthroughPlanes,
) (PlaneResult, Status, error) {
	if !pass.Produced[pr.Plane] && len(pass.Produced) > 0 {
		return e.fetchPassthroughPlane(ctx, node, pass, args, rc, pr)
	}

	key := planeKey(node, pr, args, mip)
	bpp := e.bytesPerPixel(pr.Plane.Comps, pr.BitDepth)

	// Step 8: cache lookup. The in-memory Store is checked first; a
	// miss there falls through to the persistent disk cache (spec §6)
	// before the plane is planned for render, so a process restart
	// does not discard work a prior run already did.
	var hit cacheHit
	if !args.BypassCache {
		hit = e.lookupCache(key, pr)
		if hit.img == nil {
			if diskImg := e.diskLookup(key, pr); diskImg != nil {
				hit = cacheHit{img: diskImg, exact: true}
			}
		}
	} else {
		e.Store.Evict(key)
	}

	// Eviction under memory pressure must happen before the image
	// below is (re)created, so a fresh, empty buffer replaces the one
	// memory pressure asked us to drop instead of reusing it.
	memoryPressure := e.MemPressure != nil && e.MemPressure()
	if memoryPressure && hit.img != nil {
		e.Store.Evict(key)
		hit = cacheHit{}
	}

	img, _ := e.Store.GetOrCreate(key, store.Params{
		Components:  pr.Plane.Comps,
		BitDepth:    pr.BitDepth,
		PixelAspect: 1,
		RoD:         rod,
		MipLevel:    mip,
	})
	img.ClearRenderFailed(uint64(rc.CapturedAge))

	// Step 9: plan tiles to render.
	planRect := pixelRequest
	var toRender []geom.PixelRect
	switch {
	case !node.SupportsTiles():
		toRender = []geom.PixelRect{geom.ToPixelEnclosing(rod, mip, 1)}
		planRect = toRender[0]
	case memoryPressure:
		toRender = []geom.PixelRect{pixelRequest}
	case hit.exact:
		// Grow the tile bitmap before asking what is still missing:
		// cellRange clamps to the bitmap's current extent, so a
		// request widening beyond a previously-cached region (a
		// pan/zoom, say) would otherwise have its newly-uncovered
		// portion silently dropped from the "missing" set instead of
		// reported as unrendered.
		img.EnsureBounds(planRect, bpp)
		toRender = img.MinimalUnrenderedRect(pixelRequest)
	case hit.img != nil && hit.img.Components != pr.Plane.Comps && hit.img.MipLevel == mip:
		// Different-components color-plane hit (spec §4.3 step 8):
		// convert before treating any of pixelRequest as rendered
		// (step 15's "convert components/bit depth if caller's request
		// differs from what was rendered").
		img.EnsureBounds(planRect, bpp)
		e.convertComponentsInto(img, hit.img, bpp)
		toRender = img.MinimalUnrenderedRect(pixelRequest)
	case hit.img != nil:
		// Lower-mip cache entry: a higher-resolution neighbor, not
		// directly usable at this resolution, so this mip still
		// renders in full.
		toRender = []geom.PixelRect{pixelRequest}
	default:
		toRender = []geom.PixelRect{pixelRequest}
	}

	if len(toRender) == 0 {
		return PlaneResult{Plane: pr.Plane, Image: img, Rect: planRect}, OK, nil
	}

	// Step 10: render inputs for each planned sub-rectangle.
	roiByInput := node.RegionsOfInterest(ctx, args.Time, args.View, mip, canonicalRequest)
	frames := node.FramesNeeded(ctx, args.Time, args.View)
	inputs := node.Inputs()
	var held []*store.Image
	for inputIdx, perView := range frames {
		if inputIdx < 0 || inputIdx >= len(inputs) || inputs[inputIdx] == nil {
			return PlaneResult{}, Failed, errs.New(errs.KindMissingUpstream, "frames_needed references unconnected input", nil)
		}
		_, ok := roiByInput[inputIdx]
		if !ok {
			continue
		}
		for view, ranges := range perView {
			for _, fr := range ranges {
				for t := fr.First; t <= fr.Last; t += stepOrOne(fr.Step) {
					subArgs := Args{
						Time:     t,
						View:     view,
						MipLevel: boolMip(useScaleOneInputs, mip),
						Planes:   []PlaneRequest{pr},
						RC:       rc.WithTime(t),
					}
					results, status, err := e.RenderRegion(ctx, inputs[inputIdx], subArgs)
					if status == AbortedStatus {
						return PlaneResult{}, AbortedStatus, errs.ErrAborted
					}
					if status == Failed {
						return PlaneResult{}, Failed, err
					}
					for _, r := range results {
						held = append(held, r.Image)
						rc.Hold(r.Image)
					}
				}
			}
		}
	}

	// Step 11: post-fetch cache re-check (only relevant when we dropped
	// for memory reasons and a peer may have finished meanwhile).
	if memoryPressure {
		if peer, ok := e.Store.Get(key); ok && peer != img {
			img = peer
			img.EnsureBounds(planRect, bpp)
			toRender = img.MinimalUnrenderedRect(pixelRequest)
		}
	}

	// Step 12: allocate output (a no-op for the branches above that
	// already grew img to planRect).
	img.EnsureBounds(planRect, bpp)

	// Step 13/14: dispatch tiles under the tri-map protocol.
	for _, rect := range toRender {
		if rc.RefreshAborted() {
			return PlaneResult{}, AbortedStatus, errs.ErrAborted
		}
		if err := e.renderTile(ctx, node, rc, args, pr, img, rect); err != nil {
			if errors.Is(err, errs.ErrAborted) {
				return PlaneResult{}, AbortedStatus, err
			}
			return PlaneResult{}, Failed, err
		}
	}

	// Step 15: post-process (downscale / component conversion).
	if renderFullScaleThenDownscale {
		e.downscale(img, mip)
	}

	e.diskPersist(key, img)

	return PlaneResult{Plane: pr.Plane, Image: img, Rect: planRect}, OK, nil
}

// planeKey builds the imagekey.Key for node/pr/args/mip, shared between
// renderOnePlane's own lookup and evictInconsistentPlaneHits's pre-pass
// so the two always agree on what a plane's cache key is.
func planeKey(node effect.Node, pr PlaneRequest, args Args, mip int) imagekey.Key {
	return imagekey.Key{
		NodeHash:     node.Hash(),
		Plane:        pr.Plane,
		Time:         args.Time,
		View:         args.View,
		MipLevel:     mip,
		FrameVarying: isFrameVarying(node),
	}
}

// evictInconsistentPlaneHits implements the cross-plane half of spec
// §4.3 step 8: it classifies every requested plane as hit or miss using
// lookupCache, without rendering or mutating anything beyond the
// eviction itself, and if any plane misses, evicts the Store entries of
// the planes that did hit. Otherwise the per-plane loop below would pair
// this request's freshly rendered planes with a sibling plane left over
// from an earlier request, producing an inconsistent set.
func (e *Evaluator) evictInconsistentPlaneHits(node effect.Node, mip int, args Args, wantPlanes []PlaneRequest, pass effect.PassthroughPlanes) {
	var hitKeys []imagekey.Key
	anyMiss := false
	for _, pr := range wantPlanes {
		if len(pass.Produced) > 0 && !pass.Produced[pr.Plane] {
			continue // passthrough planes are not this node's own cache entries
		}
		key := planeKey(node, pr, args, mip)
		if hit := e.lookupCache(key, pr); hit.img != nil {
			hitKeys = append(hitKeys, key)
		} else {
			anyMiss = true
		}
	}
	if !anyMiss {
		return
	}
	for _, k := range hitKeys {
		e.Store.Evict(k)
	}
}

// isFrameVarying reports whether node's output can change across time,
// either because its own time domain spans more than one frame or
// because any upstream input does (spec §3 ImageKey's frame-varying
// flag; grounded on original_source's recursive
// isFrameVaryingOrAnimated_Recursive, which ORs a node's own
// time-variance with every input's).
func isFrameVarying(node effect.Node) bool {
	first, last := node.TimeDomain()
	if first != last {
		return true
	}
	for _, in := range node.Inputs() {
		if in != nil && isFrameVarying(in) {
			return true
		}
	}
	return false
}

func stepOrOne(step float64) float64 {
	if step <= 0 {
		return 1
	}
	return step
}

func boolMip(useScaleOne bool, mip int) int {
	if useScaleOne {
		return 0
	}
	return mip
}

// cacheHit is lookupCache's result. exact means img is the Store entry
// for the request's own key — its tile bitmap is authoritative for
// this plane request and can be grown/queried directly. A non-exact
// hit (different components, or a lower mip level) names a usable but
// not directly-addressable source that the caller must convert or
// otherwise reconcile before trusting its pixels.
type cacheHit struct {
	img   *store.Image
	exact bool
}

// lookupCache implements the cache-hit policy of spec §4.3 step 8: exact
// plane match always hits; for the color plane, a different-but-
// convertible component set at bit depth ≥ requested also hits, and a
// lower mipmap level (higher resolution) is acceptable as a downscale
// source, but never the reverse.
func (e *Evaluator) lookupCache(key imagekey.Key, pr PlaneRequest) cacheHit {
	if img, ok := e.Store.Get(key); ok {
		if img.BitDepth >= pr.BitDepth {
			return cacheHit{img: img, exact: true}
		}
		return cacheHit{}
	}
	if pr.Plane.Kind != imagekey.Color {
		return cacheHit{}
	}
	// Different-but-convertible components at the same mip: a match is
	// acceptable if the stored bit depth is ≥ requested (spec §4.3
	// step 8); convertComponentsInto performs the actual conversion.
	for _, comps := range []imagekey.Components{imagekey.ComponentsRGBA, imagekey.ComponentsRGB, imagekey.ComponentsAlpha} {
		if comps == pr.Plane.Comps {
			continue
		}
		k := key
		k.Plane.Comps = comps
		if img, ok := e.Store.Get(k); ok && img.BitDepth >= pr.BitDepth {
			return cacheHit{img: img}
		}
	}
	// Try progressively lower mipmap levels (higher resolution) as a
	// downscale source.
	for m := key.MipLevel - 1; m >= 0; m-- {
		k2 := key
		k2.MipLevel = m
		if img, ok := e.Store.Get(k2); ok && img.BitDepth >= pr.BitDepth {
			return cacheHit{img: img}
		}
	}
	return cacheHit{}
}
