// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package effect defines the interface every node in the graph must
// implement, consumed by the evaluator (spec §6). This is the only
// contract between the render core and the rest of a compositor: plugin
// ABI adapters, parameter widgets, and effect algorithms all live on the
// other side of it and are out of scope (spec §1).
package effect

import (
	"context"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
)

// Safety is the threading contract a node declares for its Render method,
// consumed by the tile dispatcher to choose a dispatch strategy.
type Safety int

const (
	// Unsafe requires a global per-plugin lock across all instances.
	Unsafe Safety = iota
	// InstanceSafe allows one Render call at a time per node instance.
	InstanceSafe
	// FullySafe allows multiple concurrent Render calls per instance.
	FullySafe
	// HostTiled means the node is fully thread-safe and additionally
	// promises re-entrancy, letting the host split the tile rectangle
	// across workers itself.
	HostTiled
)

func (s Safety) String() string {
	switch s {
	case Unsafe:
		return "unsafe"
	case InstanceSafe:
		return "instance-safe"
	case FullySafe:
		return "fully-safe"
	case HostTiled:
		return "host-tiled"
	}
	return "unknown"
}

// SequentialPreference constrains whether a node's render calls for a
// frame range must be invoked strictly in order.
type SequentialPreference int

const (
	SequentialAny SequentialPreference = iota
	SequentialOnly
	SequentialNot
)

// Kind discriminates node roles that used to be resolved with a dynamic
// cast in the original implementation (spec §9).
type Kind int

const (
	KindPlain Kind = iota
	KindReader
	KindWriter
	KindViewer
	KindDiskCache
)

// FrameRange is an inclusive [First, Last] range with a Step, matching
// the {first, last, step} tuples the original frames-needed/sequence
// bracketing APIs use.
type FrameRange struct {
	First, Last, Step float64
}

// Identity is the verdict returned by IsIdentity. InputIndex of -1 means
// "not identity"; -2 means identity onto the same node at a different
// time (spec §4.3 step 5, GLOSSARY "Identity").
type Identity struct {
	InputIndex int
	Time       float64
}

// SelfAtOtherTime is the sentinel InputIndex for identity-on-self.
const SelfAtOtherTime = -2

// NotIdentity is the sentinel InputIndex for "this node is not an identity".
const NotIdentity = -1

// PassthroughPlanes is the result of NeededAndProducedPlanes: which
// planes this node produces itself, which planes each input must supply,
// and an optional single upstream (input, time, view) that every
// non-produced plane should be fetched from in one hop.
type PassthroughPlanes struct {
	Produced          map[imagekey.Plane]bool
	NeededPerInput    map[int][]imagekey.Plane
	PassthroughInput  int // -1 if none
	PassthroughTime   float64
	PassthroughView   int
}

// RenderArgs is the argument bundle for Render, carrying the scale
// actually used (render scale may differ from the requested mip level
// when the node cannot work at that level, spec §4.3 step 3).
type RenderArgs struct {
	Time           float64
	View           int
	RenderScale    float32
	Rect           geom.PixelRect
	Planes         []imagekey.Plane
	IsSequential   bool
	IsInteractive  bool
}

// PlaneBuffer is the output slot for a single requested plane; the
// effect's Render implementation writes pixels into Pixels for exactly
// the cells covered by RenderArgs.Rect.
type PlaneBuffer struct {
	Plane  imagekey.Plane
	Pixels []byte
	Stride int
}

// Node is the contract every graph node satisfies. All query methods are
// pure given the node's current hash; Render is the only method with a
// visible side effect (writing pixels).
type Node interface {
	// Hash returns the node's current content hash, folding in any
	// knob/parameter state that would change its output.
	Hash() uint64

	RegionOfDefinition(ctx context.Context, time float64, view, mip int) (geom.Rect, error)
	RegionsOfInterest(ctx context.Context, time float64, view, mip int, rect geom.Rect) map[int]geom.Rect
	FramesNeeded(ctx context.Context, time float64, view int) map[int]map[int][]FrameRange
	IsIdentity(ctx context.Context, time float64, view, mip int, rod geom.Rect) Identity
	TimeDomain() (first, last float64)

	AvailablePlanes(time float64) map[imagekey.Plane]bool
	NeededAndProducedPlanes(time float64, view int) PassthroughPlanes

	Render(ctx context.Context, args RenderArgs, out []PlaneBuffer) error

	SupportsTiles() bool
	SupportsMultiResolution() bool
	SupportsRenderScale() bool
	Safety() Safety
	Kind() Kind
	SequentialPreference() SequentialPreference

	BeginSequence(first, last, step float64, interactive bool, scale float32, view int)
	EndSequence(first, last, step float64, interactive bool, scale float32, view int)

	// Inputs returns this node's upstream inputs by index; a nil entry
	// means the input slot is unconnected.
	Inputs() []Node
}

// MatrixTransform is an optional capability (checked with a type
// assertion, not part of Node) implemented by nodes whose entire effect
// is an affine transform of a single input. The evaluator concatenates
// a chain of these (spec §4.3 step 7) instead of rendering each one's
// own region of interest.
type MatrixTransform interface {
	Node
	Matrix(time float64) geom.Matrix2D
	TransformInput() Node
}
