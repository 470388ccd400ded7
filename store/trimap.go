// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"

	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/logx"
)

// ownerID identifies the calling thread for tri-map ownership checks. A
// goroutine-local counter would require a goroutine-local variable,
// which Go does not have; callers instead carry an explicit id (the
// render-age-scoped worker id assigned by the tile dispatcher).
type OwnerID int64

// MarkRendering sets the cells covered by rect from Unrendered to
// Rendering, attributing them to owner, and increments the image's
// waiter refcount (spec §4.2). Cells already Rendered are left alone;
// cells already Rendering under a different owner are an internal
// invariant violation (spec §7 InternalInvariant) since the caller
// should have planned only the minimal unrendered rect first — that
// case terminates the render with a diagnostic instead of being
// silently absorbed.
func (img *Image) MarkRendering(rect geom.PixelRect, owner OwnerID) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.tiles == nil {
		return nil
	}
	minC, minR, maxC, maxR := img.tiles.cellRange(rect)
	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			idx := r*img.tiles.cols + c
			switch img.tiles.cells[idx] {
			case Unrendered:
				img.tiles.cells[idx] = Rendering
				img.tiles.owner[idx] = int64(owner)
				img.waiters++
			case Rendering:
				if img.tiles.owner[idx] != int64(owner) {
					otherOwner := img.tiles.owner[idx]
					logx.Logger.Error("rendering cell overlapping another rendering region by a different owner",
						"owner", int64(owner), "other_owner", otherOwner, "row", r, "col", c)
					return errs.New(errs.KindInternalInvariant,
						fmt.Sprintf("rendering cell overlapping another rendering region by a different owner (owner %d, existing owner %d)", owner, otherOwner), nil)
				}
			}
		}
	}
	return nil
}

// MarkRendered transitions the cells covered by rect to Rendered and
// wakes all waiters. Cells must have been Rendering under owner, or
// Unrendered (a direct write with no prior MarkRendering, spec §3).
func (img *Image) MarkRendered(rect geom.PixelRect, owner OwnerID) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.tiles != nil {
		minC, minR, maxC, maxR := img.tiles.cellRange(rect)
		for r := minR; r <= maxR; r++ {
			for c := minC; c <= maxC; c++ {
				idx := r*img.tiles.cols + c
				if img.tiles.cells[idx] == Rendering && img.tiles.owner[idx] == int64(owner) {
					img.waiters--
				}
				img.tiles.cells[idx] = Rendered
			}
		}
	}
	img.cond.Broadcast()
}

// Clear reverts the Rendering cells covered by rect owned by owner back
// to Unrendered (used on render failure) and wakes waiters so they
// re-evaluate rather than spin forever on a tile that will never finish.
func (img *Image) Clear(rect geom.PixelRect, owner OwnerID, failed bool, age uint64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.tiles != nil {
		minC, minR, maxC, maxR := img.tiles.cellRange(rect)
		for r := minR; r <= maxR; r++ {
			for c := minC; c <= maxC; c++ {
				idx := r*img.tiles.cols + c
				if img.tiles.cells[idx] == Rendering && img.tiles.owner[idx] == int64(owner) {
					img.tiles.cells[idx] = Unrendered
					img.waiters--
				}
			}
		}
	}
	if failed {
		img.renderFailed = true
		img.failedAge = age
	}
	img.cond.Broadcast()
}

// WaitResult is the outcome of WaitUntilDoneElsewhere.
type WaitResult struct {
	Remaining []geom.PixelRect
	Aborted   bool
}

// IsAbortedFunc is polled by WaitUntilDoneElsewhere on every wake so the
// caller's cancellation flag (spec §5 "sampled ... at top of tri-map
// wait") is honored without the tri-map package depending on rcontext.
type IsAbortedFunc func() bool

// WaitUntilDoneElsewhere blocks while any cell in rect is Rendering
// under a different owner, the image has not failed, and the caller has
// not been aborted; on each wake it recomputes the still-missing cells.
// The store lock is never held while waiting: only the per-image lock,
// released by sync.Cond.Wait for the duration of the sleep (spec §4.2,
// §5 "the store lock must never be held while waiting").
func (img *Image) WaitUntilDoneElsewhere(rect geom.PixelRect, owner OwnerID, isAborted IsAbortedFunc) WaitResult {
	img.mu.Lock()
	defer img.mu.Unlock()
	for {
		if isAborted() {
			return WaitResult{Aborted: true}
		}
		if img.renderFailed {
			return WaitResult{Remaining: img.tiles.unrenderedRects(rect)}
		}
		if !img.anyRenderingByOtherLocked(rect, owner) {
			return WaitResult{Remaining: img.tiles.unrenderedRects(rect)}
		}
		img.cond.Wait()
	}
}

func (img *Image) anyRenderingByOtherLocked(rect geom.PixelRect, owner OwnerID) bool {
	if img.tiles == nil {
		return false
	}
	minC, minR, maxC, maxR := img.tiles.cellRange(rect)
	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			idx := r*img.tiles.cols + c
			if img.tiles.cells[idx] == Rendering && img.tiles.owner[idx] != int64(owner) {
				return true
			}
		}
	}
	return false
}

// MinimalUnrenderedRect returns the still-unrendered portion of rect
// without blocking, used by render_tile before deciding whether to
// render or wait (spec §4.4).
func (img *Image) MinimalUnrenderedRect(rect geom.PixelRect) []geom.PixelRect {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.tiles == nil {
		return []geom.PixelRect{rect}
	}
	return img.tiles.unrenderedRects(rect)
}

// Waiters returns the number of live mark-rendering owners, for the
// invariant check of spec §8 ("cells in state rendering equals the
// number of live owners").
func (img *Image) Waiters() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.waiters
}
