// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evaluator

import (
	"context"

	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/rcontext"
)

// resolvePlanes implements spec §4.3 step 6: queries the node for which
// planes it produces versus which must come from an upstream input.
// RenderRegion still loops over every requested plane; the actual
// produced-vs-passthrough decision is made per plane by renderOnePlane,
// which consults the returned PassthroughPlanes.Produced set before
// deciding whether to call the node or recurse into fetchPassthroughPlane.
func (e *Evaluator) resolvePlanes(ctx context.Context, node effect.Node, args Args, rc *rcontext.Context) (own []PlaneRequest, pass effect.PassthroughPlanes, status Status, err error) {
	pp := node.NeededAndProducedPlanes(args.Time, args.View)
	return args.Planes, pp, OK, nil
}

// fetchPassthroughPlane renders a plane this node does not itself
// produce by recursing into the producing input named in pp, or the
// node's declared single-hop passthrough target (spec §4.3 step 6
// "splice the results into the output").
func (e *Evaluator) fetchPassthroughPlane(ctx context.Context, node effect.Node, pp effect.PassthroughPlanes, args Args, rc *rcontext.Context, pr PlaneRequest) (PlaneResult, Status, error) {
	inputs := node.Inputs()
	idx := pp.PassthroughInput
	if idx < 0 || idx >= len(inputs) || inputs[idx] == nil {
		for i, needed := range pp.NeededPerInput {
			for _, pl := range needed {
				if pl == pr.Plane {
					idx = i
				}
			}
		}
	}
	if idx < 0 || idx >= len(inputs) || inputs[idx] == nil {
		return PlaneResult{}, Failed, errs.New(errs.KindMissingUpstream, "no producing input for passthrough plane", nil)
	}
	t := args.Time
	if pp.PassthroughInput == idx {
		t = pp.PassthroughTime
	}
	subArgs := args
	subArgs.Time = t
	subArgs.Planes = []PlaneRequest{pr}
	subArgs.RC = rc.WithTime(t)
	results, status, err := e.RenderRegion(ctx, inputs[idx], subArgs)
	if status != OK || len(results) == 0 {
		return PlaneResult{}, status, err
	}
	return results[0], OK, nil
}

// concatResult is the outcome of concatenateTransforms: either the
// original node unchanged, or the innermost non-transform node plus the
// combined forward/inverse matrix to apply to RoIs and rendered pixels.
type concatResult struct {
	node    effect.Node
	forward geom.Matrix2D
	inverse geom.Matrix2D
}

// concatenateTransforms implements spec §4.3 step 7: if node and a chain
// of upstream nodes declare matrix-only transforms, multiply the
// matrices and reroute past them. The rerouting itself only computes a
// local value (concatResult) and touches no shared state, so the
// returned undo is a no-op; it exists so every call site still follows
// the scoped-acquisition shape of spec §9 ("RAII scope-guards ... become
// explicit scoped acquisitions ... with guaranteed release on all exit
// paths") for the cases where a future MatrixTransform implementation
// does need to release something (e.g. an upstream RoI reservation).
func (e *Evaluator) concatenateTransforms(node effect.Node) (concatResult, func()) {
	combined := geom.Identity2D()
	cur := node
	for {
		mt, ok := cur.(effect.MatrixTransform)
		if !ok {
			break
		}
		in := mt.TransformInput()
		if in == nil {
			break
		}
		combined = combined.Mul(mt.Matrix(0))
		cur = in
	}
	return concatResult{
		node:    cur,
		forward: combined,
		inverse: combined.Inverse(),
	}, func() {}
}
