// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"image"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/logx"
	"github.com/cogentcore/rendercore/store"
)

// diskLookup consults the persistent disk cache (spec §6) when the
// in-memory store has no entry for key, reconstituting a fully-rendered
// store.Image from the on-disk header and pixels so the rest of
// renderOnePlane treats it exactly like an in-memory cache hit.
func (e *Evaluator) diskLookup(key imagekey.Key, pr PlaneRequest) *store.Image {
	if e.DiskCache == nil {
		return nil
	}
	entry, ok := e.DiskCache.Get(key)
	if !ok || int(entry.Header.BitDepth) < pr.BitDepth {
		return nil
	}
	bounds := geom.PixelRect{
		Min: image.Pt(int(entry.Header.BoundsMinX), int(entry.Header.BoundsMinY)),
		Max: image.Pt(int(entry.Header.BoundsMaxX), int(entry.Header.BoundsMaxY)),
	}
	bpp := e.bytesPerPixel(pr.Plane.Comps, int(entry.Header.BitDepth))
	img, _ := e.Store.GetOrCreate(key, store.Params{
		Components:  pr.Plane.Comps,
		BitDepth:    int(entry.Header.BitDepth),
		PixelAspect: entry.Header.PixelAspect,
		MipLevel:    int(entry.Header.MipLevel),
	})
	img.EnsureBounds(bounds, bpp)
	img.WriteRect(bounds, entry.Pixels, bpp)
	img.MarkRendered(bounds, 0)
	return img
}

// diskPersist writes a fully-rendered plane to the persistent disk
// cache (spec §6) once render_region is done with it, so a later
// process sharing the same cache root can reuse the result instead of
// re-rendering. A write failure is logged, not propagated: the disk
// cache is a performance layer, never load-bearing for render_region's
// own correctness.
func (e *Evaluator) diskPersist(key imagekey.Key, img *store.Image) {
	if e.DiskCache == nil {
		return
	}
	bounds := img.Bounds()
	if bounds.IsEmpty() {
		return
	}
	buf, stride := img.Pixels()
	bpp := e.bytesPerPixel(img.Components, img.BitDepth)
	w := bounds.Max.X - bounds.Min.X
	h := bounds.Max.Y - bounds.Min.Y
	rowBytes := w * bpp
	flat := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		copy(flat[y*rowBytes:y*rowBytes+rowBytes], buf[y*stride:y*stride+rowBytes])
	}
	if err := e.DiskCache.Put(key, bounds, img.BitDepth, img.PixelAspect, flat); err != nil {
		logx.Logger.Warn("evaluator: disk cache persist failed", "key", key.String(), "err", err)
	}
}
