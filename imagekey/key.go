// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package imagekey defines the content-addressing key used by the image
// store, the action cache, and the persistent disk cache.
package imagekey

import "fmt"

// PlaneKind distinguishes the color plane from a named auxiliary plane.
type PlaneKind int

const (
	// Color is the RGBA/RGB/Alpha plane; it alone allows component
	// conversion on a cache hit (spec §4.3 step 8).
	Color PlaneKind = iota
	// Auxiliary is a named plane (e.g. motion vectors) that requires an
	// exact match.
	Auxiliary
)

// Components is the component set of the color plane.
type Components int

const (
	ComponentsNone Components = iota
	ComponentsAlpha
	ComponentsRGB
	ComponentsRGBA
)

// Plane identifies a plane instance: the color plane with a component
// set, or a named auxiliary plane.
type Plane struct {
	Kind    PlaneKind
	Comps   Components // meaningful only when Kind == Color
	AuxName string     // meaningful only when Kind == Auxiliary
}

// String renders the plane the way a log line or cache miss diagnostic
// wants it.
func (p Plane) String() string {
	if p.Kind == Auxiliary {
		return p.AuxName
	}
	return fmt.Sprintf("color(%v)", p.Comps)
}

// Key is the tuple (node-hash, plane-id, time, view, mipmap-level,
// frame-varying-flag) that addresses a single plane instance across the
// ImageStore, ActionCache, and persistent disk cache. Equality is
// structural: two Keys with identical fields identify the same image.
//
// NodeHash must fold in any knob/parameter state that would change the
// node's output; the evaluator is responsible for computing it, this
// package only carries it opaquely.
type Key struct {
	NodeHash     uint64
	Plane        Plane
	Time         float64
	View         int
	MipLevel     int
	FrameVarying bool
}

// ColorKey is a convenience constructor for the common color-plane case.
func ColorKey(nodeHash uint64, comps Components, time float64, view, mip int) Key {
	return Key{
		NodeHash: nodeHash,
		Plane:    Plane{Kind: Color, Comps: comps},
		Time:     time,
		View:     view,
		MipLevel: mip,
	}
}

// String is a stable textual form, used for disk-cache filenames and log
// lines; it is not part of the equality contract (struct equality is).
func (k Key) String() string {
	return fmt.Sprintf("%016x:%s:t%g:v%d:m%d", k.NodeHash, k.Plane, k.Time, k.View, k.MipLevel)
}
