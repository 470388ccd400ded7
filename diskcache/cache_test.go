// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diskcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
)

func testKey(nodeHash uint64) imagekey.Key {
	return imagekey.Key{
		NodeHash: nodeHash,
		Plane:    imagekey.Plane{Kind: imagekey.Color, Comps: imagekey.ComponentsRGBA},
		Time:     1,
		View:     0,
		MipLevel: 0,
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := Open(dir, 4)
	require.NoError(t, err)
	require.NotNil(t, c)
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestPutThenGetRoundTripsPixels(t *testing.T) {
	c, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	key := testKey(1)
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	bounds := geom.PixelRect{}
	bounds.Max.X, bounds.Max.Y = 2, 1
	require.NoError(t, c.Put(key, bounds, 8, 1, pixels))

	entry, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, pixels, entry.Pixels)
	assert.Equal(t, key.NodeHash, entry.Header.NodeHash)
}

func TestGetMissReturnsOkFalse(t *testing.T) {
	c, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	_, ok := c.Get(testKey(99))
	assert.False(t, ok)
}

func TestGetDetectsCorruptedChecksumAndEvicts(t *testing.T) {
	c, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	key := testKey(1)
	bounds := geom.PixelRect{}
	bounds.Max.X, bounds.Max.Y = 1, 1
	require.NoError(t, c.Put(key, bounds, 8, 1, []byte{1, 2, 3, 4}))

	path := c.pathFor(key)
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, int64(headerSize))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, ok := c.Get(key)
	assert.False(t, ok, "a checksum mismatch must be treated as a miss")
	assert.Equal(t, 0, c.Len(), "a corrupted entry must be evicted from the index")
}

func TestEvictRemovesFileFromDisk(t *testing.T) {
	c, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	key := testKey(1)
	require.NoError(t, c.Put(key, geom.PixelRect{}, 8, 1, nil))
	path := c.pathFor(key)
	_, err = os.Stat(path)
	require.NoError(t, err)

	c.Evict(key)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, c.Len())
}

func TestLRUEvictionDeletesBackingFile(t *testing.T) {
	c, err := Open(t.TempDir(), 2)
	require.NoError(t, err)
	k1, k2, k3 := testKey(1), testKey(2), testKey(3)
	require.NoError(t, c.Put(k1, geom.PixelRect{}, 8, 1, nil))
	require.NoError(t, c.Put(k2, geom.PixelRect{}, 8, 1, nil))

	p1 := c.pathFor(k1)
	require.NoError(t, c.Put(k3, geom.PixelRect{}, 8, 1, nil)) // evicts k1, the least recently used

	assert.Equal(t, 2, c.Len())
	_, err = os.Stat(p1)
	assert.True(t, os.IsNotExist(err), "the evicted entry's backing file must be removed")
}
