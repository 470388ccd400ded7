// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"context"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/rcontext"
	"github.com/cogentcore/rendercore/store"
	"github.com/cogentcore/rendercore/tiledispatcher"
)

// renderTile implements render_tile (spec §4.4): consult the tile
// bitmap for the minimal unrendered sub-rectangle, mark it Rendering,
// draw into a scratch buffer so a partial write never becomes visible
// to a concurrent reader, paste into img, then mark Rendered. On
// failure, the cells revert to Unrendered and the image's render-failed
// flag is set.
func (e *Evaluator) renderTile(ctx context.Context, node effect.Node, rc *rcontext.Context, args Args, pr PlaneRequest, img *store.Image, rect geom.PixelRect) error {
	outcome := e.Dispatcher.Dispatch(ctx, node, rc, tiledispatcher.TileArgs{
		Time:          args.Time,
		View:          args.View,
		RenderScale:   geom.Scale(args.MipLevel),
		Planes:        []imagekey.Plane{pr.Plane},
		IsSequential:  rc.Mode == rcontext.Sequential,
		IsInteractive: rc.Mode == rcontext.Interactive,
	}, rect, img, e.nextOwner, func(ctx context.Context, workerRC *rcontext.Context, owner store.OwnerID, sub geom.PixelRect) error {
		return e.renderOneTile(ctx, node, workerRC, args, pr, img, owner, sub)
	})
	switch outcome.Status {
	case "ok":
		return nil
	case "aborted":
		return errs.ErrAborted
	default:
		return outcome.Err
	}
}

func (e *Evaluator) renderOneTile(ctx context.Context, node effect.Node, rc *rcontext.Context, args Args, pr PlaneRequest, img *store.Image, owner store.OwnerID, rect geom.PixelRect) error {
	remaining := img.MinimalUnrenderedRect(rect)
	if len(remaining) == 0 {
		res := img.WaitUntilDoneElsewhere(rect, owner, func() bool { return rc.RefreshAborted() })
		if res.Aborted {
			return errs.ErrAborted
		}
		if len(res.Remaining) == 0 {
			return nil
		}
		remaining = res.Remaining
	}
	for _, sub := range remaining {
		if rc.RefreshAborted() {
			return errs.ErrAborted
		}
		if err := img.MarkRendering(sub, owner); err != nil {
			return err
		}
		if img.RenderFailed() {
			img.Clear(sub, owner, false, uint64(rc.CapturedAge))
			return errs.ErrPluginFailure
		}
		bpp := e.bytesPerPixel(pr.Plane.Comps, pr.BitDepth)
		scratch := make([]byte, (sub.Max.X-sub.Min.X)*bpp*(sub.Max.Y-sub.Min.Y))
		out := effect.PlaneBuffer{Plane: pr.Plane, Pixels: scratch, Stride: (sub.Max.X - sub.Min.X) * bpp}
		renderErr := node.Render(ctx, effect.RenderArgs{
			Time:          args.Time,
			View:          args.View,
			RenderScale:   geom.Scale(args.MipLevel),
			Rect:          sub,
			Planes:        []imagekey.Plane{pr.Plane},
			IsSequential:  rc.Mode == rcontext.Sequential,
			IsInteractive: rc.Mode == rcontext.Interactive,
		}, []effect.PlaneBuffer{out})
		if renderErr != nil {
			img.Clear(sub, owner, true, uint64(rc.CapturedAge))
			return errs.New(errs.KindPluginFailure, "render failed", renderErr)
		}
		pasteIntoImage(img, sub, scratch, bpp)
		img.MarkRendered(sub, owner)
	}
	return nil
}
