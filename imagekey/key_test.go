// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imagekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyEqualityIsStructural(t *testing.T) {
	a := ColorKey(1, ComponentsRGBA, 1.0, 0, 0)
	b := ColorKey(1, ComponentsRGBA, 1.0, 0, 0)
	assert.Equal(t, a, b)
	assert.True(t, a == b)
}

func TestKeyDiffersOnAnyField(t *testing.T) {
	base := ColorKey(1, ComponentsRGBA, 1.0, 0, 0)
	assert.NotEqual(t, base, ColorKey(2, ComponentsRGBA, 1.0, 0, 0))
	assert.NotEqual(t, base, ColorKey(1, ComponentsRGB, 1.0, 0, 0))
	assert.NotEqual(t, base, ColorKey(1, ComponentsRGBA, 2.0, 0, 0))
	assert.NotEqual(t, base, ColorKey(1, ComponentsRGBA, 1.0, 1, 0))
	assert.NotEqual(t, base, ColorKey(1, ComponentsRGBA, 1.0, 0, 1))
}

func TestKeyUsableAsMapKey(t *testing.T) {
	m := map[Key]string{}
	k := ColorKey(42, ComponentsRGB, 3.5, 0, 0)
	m[k] = "value"
	assert.Equal(t, "value", m[ColorKey(42, ComponentsRGB, 3.5, 0, 0)])
}

func TestAuxiliaryPlaneStringUsesName(t *testing.T) {
	p := Plane{Kind: Auxiliary, AuxName: "motion"}
	assert.Equal(t, "motion", p.String())
}

func TestColorPlaneStringIncludesComponents(t *testing.T) {
	p := Plane{Kind: Color, Comps: ComponentsRGBA}
	assert.Contains(t, p.String(), "color(")
}

func TestKeyStringIsStable(t *testing.T) {
	k := ColorKey(255, ComponentsAlpha, 10, 1, 2)
	assert.Equal(t, k.String(), k.String())
	assert.NotEmpty(t, k.String())
}
