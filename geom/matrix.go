// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import "github.com/chewxy/math32"

// Matrix2D is a 2x3 affine matrix [a b c d e f] applied as:
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
//
// matching the XFormMatrix2D convention used for 2D transforms in the
// teacher repo's gi/geom2d.go.
type Matrix2D struct {
	A, B, C, D, E, F float32
}

// Identity2D returns the identity affine matrix.
func Identity2D() Matrix2D {
	return Matrix2D{A: 1, D: 1}
}

// Mul returns m concatenated with n, i.e. the transform that first
// applies n then m.
func (m Matrix2D) Mul(n Matrix2D) Matrix2D {
	return Matrix2D{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// Inverse returns the inverse affine matrix, or Identity2D if m is
// singular.
func (m Matrix2D) Inverse() Matrix2D {
	det := m.A*m.D - m.B*m.C
	if math32.Abs(det) < 1e-12 {
		return Identity2D()
	}
	inv := 1 / det
	return Matrix2D{
		A: m.D * inv,
		B: -m.B * inv,
		C: -m.C * inv,
		D: m.A * inv,
		E: (m.C*m.F - m.D*m.E) * inv,
		F: (m.B*m.E - m.A*m.F) * inv,
	}
}

// ApplyToPoint transforms a point by m.
func (m Matrix2D) ApplyToPoint(p Vec2) Vec2 {
	return Vec2{m.A*p.X + m.C*p.Y + m.E, m.B*p.X + m.D*p.Y + m.F}
}

// ApplyToRect transforms a canonical rect by m, returning the
// axis-aligned bounding box of the four transformed corners.
func (m Matrix2D) ApplyToRect(r Rect) Rect {
	p0 := m.ApplyToPoint(Vec2{r.Min.X, r.Min.Y})
	p1 := m.ApplyToPoint(Vec2{r.Max.X, r.Min.Y})
	p2 := m.ApplyToPoint(Vec2{r.Min.X, r.Max.Y})
	p3 := m.ApplyToPoint(Vec2{r.Max.X, r.Max.Y})
	out := Rect{Min: p0, Max: p0}
	for _, p := range []Vec2{p1, p2, p3} {
		out.Min.X = math32.Min(out.Min.X, p.X)
		out.Min.Y = math32.Min(out.Min.Y, p.Y)
		out.Max.X = math32.Max(out.Max.X, p.X)
		out.Max.Y = math32.Max(out.Max.Y, p.Y)
	}
	return out
}
