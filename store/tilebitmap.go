// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the ImageStore (content-addressed image
// repository) and the per-image tri-map coordination layer (spec §3,
// §4.2). The map/mutex shape follows the teacher's glyphCache
// (paint/renderers/rasterx/glyphcache.go): a guarded map plus an init
// method, generalized here to condition-variable wait/notify because the
// spec requires threads to block on a peer's in-flight tile rather than
// spin.
package store

import (
	"image"

	"github.com/cogentcore/rendercore/geom"
)

// CellState is one of the three tri-map states (GLOSSARY "Tri-map").
type CellState uint8

const (
	Unrendered CellState = iota
	Rendering
	Rendered
)

// tileSize is the edge length, in pixels, of one tile-bitmap cell.
const tileSize = 64

// TileBitmap tracks the rendering state of an image's pixel bounds at
// tileSize granularity. The zero value is not usable; use newTileBitmap.
type TileBitmap struct {
	origin     image.Point // pixel-space origin of cell (0,0)
	cols, rows int
	cells      []CellState
	owner      []int64 // opaque owner id, meaningful only for Rendering cells
}

func newTileBitmap(bounds geom.PixelRect) *TileBitmap {
	if bounds.IsEmpty() {
		return &TileBitmap{}
	}
	w := bounds.Max.X - bounds.Min.X
	h := bounds.Max.Y - bounds.Min.Y
	cols := (w + tileSize - 1) / tileSize
	rows := (h + tileSize - 1) / tileSize
	return &TileBitmap{
		origin: bounds.Min,
		cols:   cols,
		rows:   rows,
		cells:  make([]CellState, cols*rows),
		owner:  make([]int64, cols*rows),
	}
}

// grow reallocates the bitmap to cover newBounds in addition to the
// current bounds, preserving existing cell states at their same pixel
// position. It never shrinks (spec §3 ensure_bounds invariant).
func (t *TileBitmap) grow(union geom.PixelRect) {
	grown := newTileBitmap(union)
	if t.cols == 0 || t.rows == 0 {
		*t = *grown
		return
	}
	for r := 0; r < t.rows; r++ {
		for c := 0; c < t.cols; c++ {
			px := t.origin.X + c*tileSize
			py := t.origin.Y + r*tileSize
			gc := (px - grown.origin.X) / tileSize
			gr := (py - grown.origin.Y) / tileSize
			if gc < 0 || gr < 0 || gc >= grown.cols || gr >= grown.rows {
				continue
			}
			idx := r*t.cols + c
			gidx := gr*grown.cols + gc
			grown.cells[gidx] = t.cells[idx]
			grown.owner[gidx] = t.owner[idx]
		}
	}
	*t = *grown
}

// cellRange returns the inclusive [minCol,maxCol] x [minRow,maxRow] cell
// range a pixel rectangle covers.
func (t *TileBitmap) cellRange(rect geom.PixelRect) (minC, minR, maxC, maxR int) {
	minC = (rect.Min.X - t.origin.X) / tileSize
	minR = (rect.Min.Y - t.origin.Y) / tileSize
	maxC = (rect.Max.X - 1 - t.origin.X) / tileSize
	maxR = (rect.Max.Y - 1 - t.origin.Y) / tileSize
	if minC < 0 {
		minC = 0
	}
	if minR < 0 {
		minR = 0
	}
	if maxC >= t.cols {
		maxC = t.cols - 1
	}
	if maxR >= t.rows {
		maxR = t.rows - 1
	}
	return
}

// cellRectPixels returns the pixel rectangle covered by cell (c, r).
func (t *TileBitmap) cellRectPixels(c, r int) geom.PixelRect {
	min := image.Pt(t.origin.X+c*tileSize, t.origin.Y+r*tileSize)
	return geom.PixelRect{Min: min, Max: image.Pt(min.X+tileSize, min.Y+tileSize)}
}

// unrenderedRects returns pixel rectangles within rect covering the
// cells that are not Rendered, merging contiguous unrendered cells
// row-by-row and then joining a run onto the run directly above it when
// both span the same columns.
func (t *TileBitmap) unrenderedRects(rect geom.PixelRect) []geom.PixelRect {
	if t.cols == 0 || t.rows == 0 {
		return []geom.PixelRect{rect}
	}
	minC, minR, maxC, maxR := t.cellRange(rect)
	var out []geom.PixelRect
	for r := minR; r <= maxR; r++ {
		runStart := -1
		for c := minC; c <= maxC+1; c++ {
			missing := c <= maxC && t.cells[r*t.cols+c] != Rendered
			if missing && runStart < 0 {
				runStart = c
			}
			if !missing && runStart >= 0 {
				a := t.cellRectPixels(runStart, r)
				b := t.cellRectPixels(c-1, r)
				run := geom.PixelRect{Min: a.Min, Max: image.Pt(b.Max.X, b.Max.Y)}.Intersect(rect)
				merged := false
				for i := range out {
					if out[i].Min.X == run.Min.X && out[i].Max.X == run.Max.X && out[i].Max.Y == run.Min.Y {
						out[i].Max.Y = run.Max.Y
						merged = true
						break
					}
				}
				if !merged {
					out = append(out, run)
				}
				runStart = -1
			}
		}
	}
	return out
}
