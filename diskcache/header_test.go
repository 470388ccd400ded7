// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diskcache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
)

func TestHeaderRoundTripsThroughWriteAndRead(t *testing.T) {
	key := imagekey.Key{
		NodeHash: 0xdeadbeefcafef00d,
		Plane:    imagekey.Plane{Kind: imagekey.Auxiliary, AuxName: "motion"},
		Time:     12.5,
		View:     1,
		MipLevel: 2,
	}
	bounds := geom.PixelRect{}
	bounds.Min.X, bounds.Min.Y = -4, -8
	bounds.Max.X, bounds.Max.Y = 100, 200
	h := HeaderFor(key, bounds, 16, 1.5)
	h.Checksum = Checksum([]byte{1, 2, 3, 4})

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderForEncodesKeyFields(t *testing.T) {
	key := imagekey.Key{
		NodeHash: 7,
		Plane:    imagekey.Plane{Kind: imagekey.Color, Comps: imagekey.ComponentsRGBA},
		Time:     3,
		View:     2,
		MipLevel: 1,
	}
	h := HeaderFor(key, geom.PixelRect{}, 8, 1)
	assert.Equal(t, magic, h.Magic)
	assert.Equal(t, version, h.Version)
	assert.Equal(t, key.NodeHash, h.NodeHash)
	assert.Equal(t, uint32(imagekey.Color), h.PlaneKind)
	assert.Equal(t, uint32(imagekey.ComponentsRGBA), h.Comps)
	assert.Equal(t, key.Time, h.Time)
}

func TestHeaderForAuxNameIsZeroPadded(t *testing.T) {
	key := imagekey.Key{Plane: imagekey.Plane{Kind: imagekey.Auxiliary, AuxName: "z"}}
	h := HeaderFor(key, geom.PixelRect{}, 8, 1)
	assert.Equal(t, byte('z'), h.AuxName[0])
	assert.Equal(t, byte(0), h.AuxName[1])
}

func TestChecksumDiffersOnAnyByteChange(t *testing.T) {
	a := Checksum([]byte{1, 2, 3})
	b := Checksum([]byte{1, 2, 4})
	assert.NotEqual(t, a, b)
}

func TestReadHeaderErrorsOnShortInput(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}
