// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diskcache implements the persistent on-disk image cache of
// spec §6: a bit-exact little-endian header (magic, version, key fields,
// bounds, mipmap level, bit depth, components, pixel aspect ratio,
// checksum) followed by raw row-major pixels, addressed by hash, evicted
// LRU.
//
// Grounded on original_source/Engine/ImageParams.h for the field list
// and on the sibling example repo's use of
// github.com/hashicorp/golang-lru/v2 for the eviction policy.
package diskcache

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
)

// magic identifies a rendercore disk-cache entry file.
const magic uint32 = 0x52434b31 // "RCK1"

// version is the on-disk header layout version.
const version uint32 = 1

// Header is the bit-exact, little-endian-encoded entry header (spec §6
// "Persistent state layout").
type Header struct {
	Magic    uint32
	Version  uint32
	NodeHash uint64
	PlaneKind uint32
	Comps     uint32
	AuxName   [32]byte // zero-padded; empty for the color plane
	Time      float64
	View      uint32
	MipLevel  uint32
	BoundsMinX, BoundsMinY int32
	BoundsMaxX, BoundsMaxY int32
	BitDepth    uint32
	PixelAspect float32
	Checksum    uint32 // CRC-32 (IEEE) of the pixel payload that follows
}

// headerSize is the encoded size in bytes; kept in sync with WriteHeader/
// ReadHeader by the field list above, never inferred via unsafe.Sizeof
// since Go struct layout is not guaranteed to match the wire format.
const headerSize = 4 + 4 + 8 + 4 + 4 + 32 + 8 + 4 + 4 + 4*4 + 4 + 4 + 4

// WriteHeader encodes h to w in the field order above, little-endian.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, headerSize)
	o := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:], v); o += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:], v); o += 8 }
	putF64 := func(v float64) { putU64(math.Float64bits(v)) }
	putI32 := func(v int32) { binary.LittleEndian.PutUint32(buf[o:], uint32(v)); o += 4 }
	putF32 := func(v float32) { putU32(math.Float32bits(v)) }

	putU32(h.Magic)
	putU32(h.Version)
	putU64(h.NodeHash)
	putU32(h.PlaneKind)
	putU32(h.Comps)
	copy(buf[o:o+32], h.AuxName[:])
	o += 32
	putF64(h.Time)
	putU32(h.View)
	putU32(h.MipLevel)
	putI32(h.BoundsMinX)
	putI32(h.BoundsMinY)
	putI32(h.BoundsMaxX)
	putI32(h.BoundsMaxY)
	putU32(h.BitDepth)
	putF32(h.PixelAspect)
	putU32(h.Checksum)

	_, err := w.Write(buf)
	return err
}

// ReadHeader decodes a Header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	o := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o:]); o += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o:]); o += 8; return v }
	getF64 := func() float64 { return math.Float64frombits(getU64()) }
	getI32 := func() int32 { return int32(getU32()) }
	getF32 := func() float32 { return math.Float32frombits(getU32()) }

	var h Header
	h.Magic = getU32()
	h.Version = getU32()
	h.NodeHash = getU64()
	h.PlaneKind = getU32()
	h.Comps = getU32()
	copy(h.AuxName[:], buf[o:o+32])
	o += 32
	h.Time = getF64()
	h.View = getU32()
	h.MipLevel = getU32()
	h.BoundsMinX = getI32()
	h.BoundsMinY = getI32()
	h.BoundsMaxX = getI32()
	h.BoundsMaxY = getI32()
	h.BitDepth = getU32()
	h.PixelAspect = getF32()
	h.Checksum = getU32()
	return h, nil
}

// HeaderFor builds the header for key/bounds/mip/bitDepth/pixelAspect,
// leaving Checksum to be filled in once the pixel payload is known.
func HeaderFor(key imagekey.Key, bounds geom.PixelRect, bitDepth int, pixelAspect float32) Header {
	h := Header{
		Magic:       magic,
		Version:     version,
		NodeHash:    key.NodeHash,
		PlaneKind:   uint32(key.Plane.Kind),
		Comps:       uint32(key.Plane.Comps),
		Time:        key.Time,
		View:        uint32(key.View),
		MipLevel:    uint32(key.MipLevel),
		BoundsMinX:  int32(bounds.Min.X),
		BoundsMinY:  int32(bounds.Min.Y),
		BoundsMaxX:  int32(bounds.Max.X),
		BoundsMaxY:  int32(bounds.Max.Y),
		BitDepth:    uint32(bitDepth),
		PixelAspect: pixelAspect,
	}
	copy(h.AuxName[:], []byte(key.Plane.AuxName))
	return h
}

// Checksum computes the CRC-32 (IEEE) of a pixel payload.
func Checksum(pixels []byte) uint32 {
	return crc32.ChecksumIEEE(pixels)
}

