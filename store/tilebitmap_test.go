// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/geom"
)

func TestNewTileBitmapEmptyBoundsIsZeroValue(t *testing.T) {
	tb := newTileBitmap(geom.PixelRect{})
	assert.Equal(t, 0, tb.cols)
	assert.Equal(t, 0, tb.rows)
}

func TestUnrenderedRectsWholeRegionInitially(t *testing.T) {
	bounds := geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(128, 128)}
	tb := newTileBitmap(bounds)
	got := tb.unrenderedRects(bounds)
	require.Len(t, got, 1)
	assert.Equal(t, bounds, got[0])
}

func TestUnrenderedRectsAfterPartialRender(t *testing.T) {
	bounds := geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(128, 64)}
	tb := newTileBitmap(bounds)
	// render the left half of cells directly via the cell array.
	minC, minR, maxC, maxR := tb.cellRange(geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(64, 64)})
	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			tb.cells[r*tb.cols+c] = Rendered
		}
	}
	got := tb.unrenderedRects(bounds)
	var total int
	for _, r := range got {
		total += (r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y)
	}
	assert.Equal(t, 64*64, total)
}

func TestGrowPreservesExistingCellStates(t *testing.T) {
	bounds := geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(64, 64)}
	tb := newTileBitmap(bounds)
	tb.cells[0] = Rendered

	union := bounds.Union(geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(128, 128)})
	tb.grow(union)

	require.GreaterOrEqual(t, tb.cols*tileSize, 128)
	minC, minR, _, _ := tb.cellRange(geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(1, 1)})
	assert.Equal(t, Rendered, tb.cells[minR*tb.cols+minC])
}

func TestCellRangeClampsToBitmapBounds(t *testing.T) {
	bounds := geom.PixelRect{Min: image.Pt(0, 0), Max: image.Pt(64, 64)}
	tb := newTileBitmap(bounds)
	minC, minR, maxC, maxR := tb.cellRange(geom.PixelRect{Min: image.Pt(-100, -100), Max: image.Pt(1000, 1000)})
	assert.Equal(t, 0, minC)
	assert.Equal(t, 0, minR)
	assert.Equal(t, tb.cols-1, maxC)
	assert.Equal(t, tb.rows-1, maxR)
}
