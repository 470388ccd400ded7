// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"sync"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
)

// Image is a single plane instance: components, bit depth, pixel aspect
// ratio, region-of-definition, bounds, mipmap level, pixel buffer, and
// optionally a tile bitmap (spec §3). The store exclusively owns the
// pixel buffer; other components hold a *Image pointer to it.
type Image struct {
	Key imagekey.Key

	Components  imagekey.Components
	BitDepth    int
	PixelAspect float32
	RoD         geom.Rect
	MipLevel    int

	mu     sync.Mutex
	cond   *sync.Cond
	bounds geom.PixelRect
	pixels []byte
	stride int

	allocated bool

	tiles *TileBitmap // nil if this image does not track tile state

	renderFailed bool
	failedAge    uint64
	waiters      int // count of live mark-rendering owners not yet matched
}

func newImage(key imagekey.Key) *Image {
	img := &Image{Key: key}
	img.cond = sync.NewCond(&img.mu)
	return img
}

// Bounds returns the image's current pixel bounds.
func (img *Image) Bounds() geom.PixelRect {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.bounds
}

// Pixels returns the raw pixel buffer and row stride. Callers may only
// read cells whose tile-bitmap state is Rendered, or the whole buffer if
// no tile bitmap is tracked (a non-tiled node's single-shot output).
func (img *Image) Pixels() (buf []byte, stride int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.pixels, img.stride
}

// WriteRect copies src (row-major, stride srcStride bytes, bpp bytes
// per pixel) into the image's pixel buffer at sub's pixel position. The
// caller must already hold Rendering ownership of every cell sub
// covers; WriteRect itself only guards the shared buffer pointer/stride
// pair, matching spec §5 ("writer has exclusive right by holding
// rendering state on the covered cells ... no separate lock").
func (img *Image) WriteRect(sub geom.PixelRect, src []byte, bpp int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if !img.allocated {
		return
	}
	w := sub.Max.X - sub.Min.X
	h := sub.Max.Y - sub.Min.Y
	srcStride := w * bpp
	dx := (sub.Min.X - img.bounds.Min.X) * bpp
	dy := sub.Min.Y - img.bounds.Min.Y
	for y := 0; y < h; y++ {
		srcRow := src[y*srcStride : y*srcStride+srcStride]
		dstOff := (y+dy)*img.stride + dx
		copy(img.pixels[dstOff:dstOff+srcStride], srcRow)
	}
}

// EnsureAllocated allocates the pixel buffer for bounds if it has not
// already been allocated. Idempotent: concurrent callers racing to
// allocate the same Image converge on exactly one allocation, the
// callers other than the first observe allocated=true and do no work.
func (img *Image) EnsureAllocated(bounds geom.PixelRect, bytesPerPixel int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.allocated {
		return
	}
	img.allocateLocked(bounds, bytesPerPixel)
}

func (img *Image) allocateLocked(bounds geom.PixelRect, bytesPerPixel int) {
	w := bounds.Max.X - bounds.Min.X
	h := bounds.Max.Y - bounds.Min.Y
	img.bounds = bounds
	img.stride = w * bytesPerPixel
	img.pixels = make([]byte, img.stride*h)
	img.tiles = newTileBitmap(bounds)
	img.allocated = true
}

// EnsureBounds grows the buffer and tile bitmap to cover bounds ∪
// newBounds, preserving existing pixel values; it never shrinks (spec
// §3). bytesPerPixel is needed to re-stride the buffer on growth.
func (img *Image) EnsureBounds(newBounds geom.PixelRect, bytesPerPixel int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if !img.allocated {
		img.allocateLocked(newBounds, bytesPerPixel)
		return
	}
	union := img.bounds.Union(newBounds)
	if union == img.bounds {
		return
	}
	oldW := img.bounds.Max.X - img.bounds.Min.X
	oldH := img.bounds.Max.Y - img.bounds.Min.Y
	oldPixels, oldStride, oldOrigin := img.pixels, img.stride, img.bounds.Min
	newW := union.Max.X - union.Min.X
	newH := union.Max.Y - union.Min.Y
	img.pixels = make([]byte, newW*bytesPerPixel*newH)
	img.stride = newW * bytesPerPixel
	img.bounds = union
	// copy old rows into their new position
	dx := (oldOrigin.X - union.Min.X) * bytesPerPixel
	dy := oldOrigin.Y - union.Min.Y
	for y := 0; y < oldH; y++ {
		srcRow := oldPixels[y*oldStride : y*oldStride+oldW*bytesPerPixel]
		dstOff := (y+dy)*img.stride + dx
		copy(img.pixels[dstOff:dstOff+len(srcRow)], srcRow)
	}
	if img.tiles == nil {
		img.tiles = newTileBitmap(union)
	} else {
		img.tiles.grow(union)
	}
}

// ClearRenderFailed resets the failure flag when an image is freshly
// re-entered under a new render-age (spec §4.2 "the flag is scoped to
// the render-age and cleared when the image is freshly re-entered").
func (img *Image) ClearRenderFailed(age uint64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.renderFailed && img.failedAge != age {
		img.renderFailed = false
	}
}

// RenderFailed reports whether this image's current render-age has
// observed a tile failure.
func (img *Image) RenderFailed() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.renderFailed
}
