// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"image"

	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/draw"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/store"
)

// pasteIntoImage copies a rendered scratch buffer into img's pixel
// buffer at sub's pixel position, the way render_tile avoids a partial
// write becoming visible while the cell is still marked Rendering
// (spec §4.4): the paste happens before MarkRendered, under the image's
// own lock (store.Image.WriteRect).
func pasteIntoImage(img *store.Image, sub geom.PixelRect, scratch []byte, bpp int) {
	img.WriteRect(sub, scratch, bpp)
}

// downscale implements the full-scale-then-downscale half of spec §4.3
// step 15: when the plug-in rendered at level 0 because it declared it
// cannot work at the requested mip level, reduce the freshly rendered
// full-scale buffer down to the level the caller actually wants.
//
// Grounded on the teacher's direct dependency on
// github.com/anthonynsimon/bild: its transform.Resize is a box/linear
// resampler, the same role Image::downscaleMipMap plays in
// EffectInstance.cpp. Raw byte buffers are round-tripped through
// image.NRGBA for 8-bit color planes; higher bit depths and auxiliary
// planes use the nearest-neighbor box-average fallback below, since
// bild only operates on image.Image's 8-bit-per-channel model.
func (e *Evaluator) downscale(img *store.Image, targetMip int) {
	bounds := img.Bounds()
	if bounds.IsEmpty() {
		return
	}
	bpp := e.bytesPerPixel(img.Components, img.BitDepth)
	buf, stride := img.Pixels()
	targetBounds := geom.ToPixelEnclosing(img.RoD, targetMip, 1)
	scale := geom.Scale(targetMip)

	if img.BitDepth == 8 && bpp == 4 {
		src := image.NewNRGBA(bounds.ToImageRectangle())
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			srcRow := buf[(y-bounds.Min.Y)*stride : (y-bounds.Min.Y)*stride+(bounds.Max.X-bounds.Min.X)*bpp]
			copy(src.Pix[src.PixOffset(bounds.Min.X, y):], srcRow)
		}
		w := targetBounds.Max.X - targetBounds.Min.X
		h := targetBounds.Max.Y - targetBounds.Min.Y
		resized := transform.Resize(src, w, h, transform.Linear)
		dst := image.NewNRGBA(targetBounds.ToImageRectangle())
		draw.Draw(dst, dst.Bounds(), resized, image.Point{}, draw.Src)
		img.EnsureBounds(targetBounds, bpp)
		out := make([]byte, w*bpp*h)
		for y := 0; y < h; y++ {
			srcRow := dst.Pix[dst.PixOffset(0, y) : dst.PixOffset(0, y)+w*bpp]
			copy(out[y*w*bpp:], srcRow)
		}
		img.WriteRect(targetBounds, out, bpp)
		return
	}
	boxAverageDownscale(img, bounds, buf, stride, bpp, targetBounds, scale)
}

// convertComponentsInto implements the component/bit-depth conversion
// half of spec §4.3 steps 8 and 15: src was accepted as a cache hit for
// dst's plane request because it is the same color plane at a
// different component layout and a bit depth no lower than requested.
// The overlap of dst's and src's bounds is converted and stamped
// Rendered directly (no prior MarkRendering: a cache-derived write,
// spec §3) so render_tile never redoes work already done under a
// different PlaneRequest.
//
// RGBA<->Alpha at 8 bits round-trips through golang.org/x/image/draw's
// own color-model conversion (the same dependency downscale already
// uses); every other combination — RGB has no standalone stdlib image
// type, and non-8-bit channels don't fit color.Color's model — goes
// through convertPixel, a direct byte-level channel copy.
func (e *Evaluator) convertComponentsInto(dst, src *store.Image, dstBpp int) {
	region := dst.Bounds().Intersect(src.Bounds())
	if region.IsEmpty() {
		return
	}
	w := region.Max.X - region.Min.X
	h := region.Max.Y - region.Min.Y
	srcBuf, srcStride := src.Pixels()
	srcBpp := e.bytesPerPixel(src.Components, src.BitDepth)
	srcOrigin := src.Bounds().Min

	out := make([]byte, w*dstBpp*h)
	if src.BitDepth == 8 && dst.BitDepth == 8 &&
		src.Components != imagekey.ComponentsRGB && dst.Components != imagekey.ComponentsRGB {
		srcImg := plane8Image(src.Components, srcBuf, srcStride, src.Bounds().ToImageRectangle())
		dstRect := image.Rect(0, 0, w, h)
		dstImg := plane8Image(dst.Components, out, w*dstBpp, dstRect)
		draw.Draw(dstImg, dstRect, srcImg, region.Min, draw.Src)
	} else {
		srcCW := channelWidth(src.BitDepth)
		dstCW := channelWidth(dst.BitDepth)
		for y := 0; y < h; y++ {
			srcRow := srcBuf[(region.Min.Y+y-srcOrigin.Y)*srcStride+(region.Min.X-srcOrigin.X)*srcBpp:]
			dstRow := out[y*w*dstBpp : y*w*dstBpp+w*dstBpp]
			for x := 0; x < w; x++ {
				convertPixel(srcRow[x*srcBpp:x*srcBpp+srcBpp], dstRow[x*dstBpp:x*dstBpp+dstBpp], src.Components, dst.Components, srcCW, dstCW)
			}
		}
	}
	dst.WriteRect(region, out, dstBpp)
	dst.MarkRendered(region, 0)
}

// plane8Image wraps an 8-bit-per-channel color-plane buffer as a
// stdlib image.Image/draw.Image so golang.org/x/image/draw can convert
// between RGBA and Alpha. RGB (no alpha channel) is excluded by the
// caller: the standard library has no alpha-less RGB image type.
func plane8Image(comps imagekey.Components, buf []byte, stride int, rect image.Rectangle) draw.Image {
	if comps == imagekey.ComponentsAlpha {
		return &image.Alpha{Pix: buf, Stride: stride, Rect: rect}
	}
	return &image.NRGBA{Pix: buf, Stride: stride, Rect: rect}
}

// channelWidth returns the byte width of a single color/alpha channel
// at bitDepth (always a whole number of 8-bit bytes in this store).
func channelWidth(bitDepth int) int {
	w := bitDepth / 8
	if w < 1 {
		w = 1
	}
	return w
}

// convertPixel copies one pixel's channels from s (srcComps, srcCW
// bytes/channel) to d (dstComps, dstCW bytes/channel). A channel
// absent from srcComps defaults to fully opaque for alpha, zero for
// color. A wider source channel is truncated to dstCW's leading bytes.
func convertPixel(s, d []byte, srcComps, dstComps imagekey.Components, srcCW, dstCW int) {
	channel := func(idx int) []byte {
		off := idx * srcCW
		if off+srcCW > len(s) {
			return nil
		}
		return s[off : off+srcCW]
	}
	opaque := make([]byte, dstCW)
	for i := range opaque {
		opaque[i] = 0xff
	}
	var r, g, b, a []byte
	switch srcComps {
	case imagekey.ComponentsRGBA:
		r, g, b, a = channel(0), channel(1), channel(2), channel(3)
	case imagekey.ComponentsRGB:
		r, g, b, a = channel(0), channel(1), channel(2), opaque
	case imagekey.ComponentsAlpha:
		a = channel(0)
	}
	put := func(idx int, v []byte) {
		if v == nil {
			return
		}
		n := dstCW
		if len(v) < n {
			n = len(v)
		}
		copy(d[idx*dstCW:idx*dstCW+n], v[:n])
	}
	switch dstComps {
	case imagekey.ComponentsRGBA:
		put(0, r)
		put(1, g)
		put(2, b)
		put(3, a)
	case imagekey.ComponentsRGB:
		put(0, r)
		put(1, g)
		put(2, b)
	case imagekey.ComponentsAlpha:
		put(0, a)
	}
}

// boxAverageDownscale is the bit-depth-agnostic fallback: it samples
// one source pixel per 1/scale step into the destination, byte by
// byte. Used for auxiliary planes and non-8-bit color planes that
// bild's image.Image pipeline cannot represent.
func boxAverageDownscale(img *store.Image, bounds geom.PixelRect, buf []byte, stride, bpp int, targetBounds geom.PixelRect, scale float32) {
	w := targetBounds.Max.X - targetBounds.Min.X
	h := targetBounds.Max.Y - targetBounds.Min.Y
	if w <= 0 || h <= 0 {
		return
	}
	step := int(1 / scale)
	if step < 1 {
		step = 1
	}
	out := make([]byte, w*bpp*h)
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			sx := bounds.Min.X + tx*step
			sy := bounds.Min.Y + ty*step
			if sx >= bounds.Max.X || sy >= bounds.Max.Y {
				continue
			}
			srcOff := (sy-bounds.Min.Y)*stride + (sx-bounds.Min.X)*bpp
			dstOff := (ty*w + tx) * bpp
			copy(out[dstOff:dstOff+bpp], buf[srcOff:srcOff+bpp])
		}
	}
	img.EnsureBounds(targetBounds, bpp)
	img.WriteRect(targetBounds, out, bpp)
}
