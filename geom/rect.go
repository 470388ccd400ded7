// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geom implements the two coordinate spaces the render core moves
// rectangles through: canonical (resolution-independent, floating point)
// and pixel (integer, scoped to a mipmap level and pixel aspect ratio).
//
// The vector/box shape mirrors math32.Box2 in the teacher repo, built as
// thin wrappers around github.com/chewxy/math32's optimized float32 math
// rather than the standard library's float64 math package.
package geom

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a canonical-space rectangle: resolution independent, scale
// invariant. Min is inclusive, Max is exclusive, matching image.Rectangle's
// convention so conversions stay mechanical.
type Rect struct {
	Min, Max Vec2
}

// Vec2 is a 2D float32 point or size.
type Vec2 struct {
	X, Y float32
}

// R returns a new Rect from the given min/max coordinates.
func R(x0, y0, x1, y1 float32) Rect {
	return Rect{Vec2{x0, y0}, Vec2{x1, y1}}
}

// Empty returns a Rect with no area, positioned so that Union with any
// other rect yields that rect unchanged.
func Empty() Rect {
	return Rect{
		Min: Vec2{math32.MaxFloat32, math32.MaxFloat32},
		Max: Vec2{-math32.MaxFloat32, -math32.MaxFloat32},
	}
}

// Infinite returns a Rect whose bounds are ±infinity on every side, the
// sentinel a region_of_definition may return before the infinity
// heuristic (spec §4.3 step 4) clips it.
func Infinite() Rect {
	return Rect{
		Min: Vec2{-math32.Inf(1), -math32.Inf(1)},
		Max: Vec2{math32.Inf(1), math32.Inf(1)},
	}
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

// IsInfinite reports whether any side is ±infinity.
func (r Rect) IsInfinite() bool {
	return math32.IsInf(r.Min.X, -1) || math32.IsInf(r.Min.Y, -1) ||
		math32.IsInf(r.Max.X, 1) || math32.IsInf(r.Max.Y, 1)
}

// Union returns the smallest rectangle containing both r and o. An empty
// operand is absorbed without affecting the result, so repeated Union
// calls starting from Empty() behave like a running bounding box.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		Min: Vec2{math32.Min(r.Min.X, o.Min.X), math32.Min(r.Min.Y, o.Min.Y)},
		Max: Vec2{math32.Max(r.Max.X, o.Max.X), math32.Max(r.Max.Y, o.Max.Y)},
	}
}

// Intersect returns the overlap of r and o, or Empty() if they do not
// overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Min: Vec2{math32.Max(r.Min.X, o.Min.X), math32.Max(r.Min.Y, o.Min.Y)},
		Max: Vec2{math32.Min(r.Max.X, o.Max.X), math32.Min(r.Max.Y, o.Max.Y)},
	}
	if out.IsEmpty() {
		return Empty()
	}
	return out
}

// Contains reports whether o is fully contained within r.
func (r Rect) Contains(o Rect) bool {
	if o.IsEmpty() {
		return true
	}
	return o.Min.X >= r.Min.X && o.Min.Y >= r.Min.Y && o.Max.X <= r.Max.X && o.Max.Y <= r.Max.Y
}

// PixelRect is a pixel-space rectangle at a given mipmap level. Min is
// inclusive, Max is exclusive.
type PixelRect struct {
	Min, Max image.Point
}

// IsEmpty reports whether the rectangle has no area.
func (p PixelRect) IsEmpty() bool {
	return p.Max.X <= p.Min.X || p.Max.Y <= p.Min.Y
}

// Union returns the smallest pixel rectangle containing both p and o.
func (p PixelRect) Union(o PixelRect) PixelRect {
	if p.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return p
	}
	return PixelRect{
		Min: image.Pt(min(p.Min.X, o.Min.X), min(p.Min.Y, o.Min.Y)),
		Max: image.Pt(max(p.Max.X, o.Max.X), max(p.Max.Y, o.Max.Y)),
	}
}

// Intersect returns the overlap of p and o.
func (p PixelRect) Intersect(o PixelRect) PixelRect {
	out := PixelRect{
		Min: image.Pt(max(p.Min.X, o.Min.X), max(p.Min.Y, o.Min.Y)),
		Max: image.Pt(min(p.Max.X, o.Max.X), min(p.Max.Y, o.Max.Y)),
	}
	if out.IsEmpty() {
		return PixelRect{}
	}
	return out
}

// Sub subtracts o from p, returning the (possibly several) rectangles
// that remain. Used by the tile bitmap to compute the still-unrendered
// portion of a requested rectangle.
func (p PixelRect) Sub(o PixelRect) []PixelRect {
	ov := p.Intersect(o)
	if ov.IsEmpty() {
		return []PixelRect{p}
	}
	var out []PixelRect
	// top strip
	if ov.Min.Y > p.Min.Y {
		out = append(out, PixelRect{image.Pt(p.Min.X, p.Min.Y), image.Pt(p.Max.X, ov.Min.Y)})
	}
	// bottom strip
	if ov.Max.Y < p.Max.Y {
		out = append(out, PixelRect{image.Pt(p.Min.X, ov.Max.Y), image.Pt(p.Max.X, p.Max.Y)})
	}
	// left strip (bounded to the overlap's Y range)
	if ov.Min.X > p.Min.X {
		out = append(out, PixelRect{image.Pt(p.Min.X, ov.Min.Y), image.Pt(ov.Min.X, ov.Max.Y)})
	}
	// right strip
	if ov.Max.X < p.Max.X {
		out = append(out, PixelRect{image.Pt(ov.Max.X, ov.Min.Y), image.Pt(p.Max.X, ov.Max.Y)})
	}
	return out
}

// ToImageRectangle converts to the standard library's image.Rectangle.
func (p PixelRect) ToImageRectangle() image.Rectangle {
	return image.Rectangle{Min: p.Min, Max: p.Max}
}

// Scale is the per-mipmap-level scale factor: pixel size = canonical size * 2^-level.
func Scale(mipLevel int) float32 {
	return math32.Pow(2, float32(-mipLevel))
}

// ToPixelEnclosing converts a canonical rect to pixel space at the given
// mipmap level and pixel aspect ratio, always rounding outward so the
// pixel rectangle fully covers the canonical one. Deterministic: same
// inputs always produce the same bit pattern.
func ToPixelEnclosing(r Rect, mipLevel int, pixelAspect float32) PixelRect {
	if r.IsEmpty() {
		return PixelRect{}
	}
	s := Scale(mipLevel)
	minX := math32.Floor(r.Min.X * s / pixelAspect)
	minY := math32.Floor(r.Min.Y * s)
	maxX := math32.Ceil(r.Max.X * s / pixelAspect)
	maxY := math32.Ceil(r.Max.Y * s)
	return PixelRect{
		Min: image.Pt(int(minX), int(minY)),
		Max: image.Pt(int(maxX), int(maxY)),
	}
}

// FromPixel converts a pixel rectangle back to canonical space at the
// given mipmap level and pixel aspect ratio.
func FromPixel(p PixelRect, mipLevel int, pixelAspect float32) Rect {
	s := Scale(mipLevel)
	return Rect{
		Min: Vec2{float32(p.Min.X) * pixelAspect / s, float32(p.Min.Y) / s},
		Max: Vec2{float32(p.Max.X) * pixelAspect / s, float32(p.Max.Y) / s},
	}
}
