// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tiledispatcher splits the still-unrendered portion of a tile
// rectangle across worker threads according to the node's declared
// safety mode (spec §4.4).
package tiledispatcher

import (
	"context"
	"errors"
	"image"
	"reflect"
	"sync"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"github.com/cogentcore/rendercore/rcontext"
	"github.com/cogentcore/rendercore/store"
	"golang.org/x/sync/errgroup"
)

// Dispatcher owns the locks that arbitrate concurrent Render calls for
// instance-safe and unsafe nodes, and the worker-count cap used when
// splitting host-tiled work.
type Dispatcher struct {
	maxWorkers int

	mu              sync.Mutex
	perNodeLocks    map[effect.Node]*sync.Mutex
	perPluginLocks  map[reflect.Type]*sync.Mutex
}

// New returns a Dispatcher whose host-tiled fan-out is clamped to
// maxWorkers. A maxWorkers below 1 is raised to 1; New applies no other
// bound, so the caller chooses the value.
func New(maxWorkers int) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Dispatcher{
		maxWorkers:     maxWorkers,
		perNodeLocks:   map[effect.Node]*sync.Mutex{},
		perPluginLocks: map[reflect.Type]*sync.Mutex{},
	}
}

func (d *Dispatcher) nodeLock(n effect.Node) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.perNodeLocks[n]
	if !ok {
		l = &sync.Mutex{}
		d.perNodeLocks[n] = l
	}
	return l
}

func (d *Dispatcher) pluginLock(n effect.Node) *sync.Mutex {
	t := reflect.TypeOf(n)
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.perPluginLocks[t]
	if !ok {
		l = &sync.Mutex{}
		d.perPluginLocks[t] = l
	}
	return l
}

// TileArgs is the per-tile render request passed to the node.
type TileArgs struct {
	Time          float64
	View          int
	RenderScale   float32
	Planes        []imagekey.Plane
	IsSequential  bool
	IsInteractive bool
}

// Outcome is the result of dispatching one or more sub-rectangles.
type Outcome struct {
	Rendered []geom.PixelRect
	Status   string // "ok" | "aborted" | "failed"
	Err      error
}

// Dispatch renders rect on node according to its declared safety,
// splitting across up to d.maxWorkers goroutines for HostTiled nodes.
// img and owner identify the tri-map bookkeeping target; rc is the
// caller's RenderContext, snapshotted into each spawned worker.
func (d *Dispatcher) Dispatch(ctx context.Context, node effect.Node, rc *rcontext.Context, args TileArgs, rect geom.PixelRect, img *store.Image, nextOwner func() store.OwnerID, render func(context.Context, *rcontext.Context, store.OwnerID, geom.PixelRect) error) Outcome {
	switch node.Safety() {
	case effect.HostTiled:
		return d.dispatchHostTiled(ctx, rc, rect, nextOwner, render)
	case effect.InstanceSafe:
		l := d.nodeLock(node)
		l.Lock()
		defer l.Unlock()
		return single(ctx, rc, rect, nextOwner, render)
	case effect.Unsafe:
		l := d.pluginLock(node)
		l.Lock()
		defer l.Unlock()
		return single(ctx, rc, rect, nextOwner, render)
	default: // FullySafe
		return single(ctx, rc, rect, nextOwner, render)
	}
}

func single(ctx context.Context, rc *rcontext.Context, rect geom.PixelRect, nextOwner func() store.OwnerID, render func(context.Context, *rcontext.Context, store.OwnerID, geom.PixelRect) error) Outcome {
	owner := nextOwner()
	if err := render(ctx, rc, owner, rect); err != nil {
		return outcomeFromErr(rect, err)
	}
	return Outcome{Rendered: []geom.PixelRect{rect}, Status: "ok"}
}

// dispatchHostTiled splits rect into up to d.maxWorkers horizontal
// strips, runs render on each concurrently, and waits for all to finish
// (spec §4.4 "split the tile rectangle into N sub-rectangles ... wait
// for all"). Each worker gets a Snapshot of rc, restored inside the
// worker goroutine (spec §4.4 "snapshot the RenderContext ... restore
// it inside the worker").
func (d *Dispatcher) dispatchHostTiled(ctx context.Context, rc *rcontext.Context, rect geom.PixelRect, nextOwner func() store.OwnerID, render func(context.Context, *rcontext.Context, store.OwnerID, geom.PixelRect) error) Outcome {
	strips := splitHorizontal(rect, d.maxWorkers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxWorkers)
	results := make([][]geom.PixelRect, len(strips))
	for i, strip := range strips {
		i, strip := i, strip
		owner := nextOwner()
		workerRC := rc.Snapshot()
		g.Go(func() error {
			if err := render(gctx, workerRC, owner, strip); err != nil {
				return err
			}
			results[i] = []geom.PixelRect{strip}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomeFromErr(rect, err)
	}
	var rendered []geom.PixelRect
	for _, r := range results {
		rendered = append(rendered, r...)
	}
	return Outcome{Rendered: rendered, Status: "ok"}
}

func outcomeFromErr(rect geom.PixelRect, err error) Outcome {
	if errors.Is(err, errs.ErrAborted) {
		return Outcome{Status: "aborted", Err: err}
	}
	return Outcome{Status: "failed", Err: err}
}

// splitHorizontal divides rect into at most n horizontal strips of
// roughly equal height.
func splitHorizontal(rect geom.PixelRect, n int) []geom.PixelRect {
	h := rect.Max.Y - rect.Min.Y
	if n < 1 {
		n = 1
	}
	if h <= 0 || n <= 1 || h < n {
		return []geom.PixelRect{rect}
	}
	stripH := (h + n - 1) / n
	var out []geom.PixelRect
	for y := rect.Min.Y; y < rect.Max.Y; y += stripH {
		y1 := y + stripH
		if y1 > rect.Max.Y {
			y1 = rect.Max.Y
		}
		out = append(out, geom.PixelRect{
			Min: image.Pt(rect.Min.X, y),
			Max: image.Pt(rect.Max.X, y1),
		})
	}
	return out
}
