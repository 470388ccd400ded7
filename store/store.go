// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"sync"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/imagekey"
	"golang.org/x/sync/singleflight"
)

// Params describes how to allocate a fresh Image when GetOrCreate misses.
type Params struct {
	Components  imagekey.Components
	BitDepth    int
	PixelAspect float32
	RoD         geom.Rect
	MipLevel    int
}

// Store is the content-addressed image repository shared across all
// render threads (spec §4.2). Reads are lock-free once a handle is
// obtained: the returned *Image carries its own mutex for pixel/tile
// access, the Store's lock only protects the key→handle map.
type Store struct {
	mu     sync.RWMutex
	images map[imagekey.Key]*Image

	// alloc deduplicates concurrent GetOrCreate calls for the same key,
	// so exactly one goroutine runs the allocation path even under a
	// race (spec §4.2 "the caller may race to call it; exactly one
	// thread allocates the pixel buffer").
	alloc singleflight.Group
}

// New returns an empty Store.
func New() *Store {
	return &Store{images: map[imagekey.Key]*Image{}}
}

// Get returns the image under key, or ok=false on a miss.
func (s *Store) Get(key imagekey.Key) (*Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[key]
	return img, ok
}

// getOrCreateResult is the payload threaded through singleflight.Do so
// GetOrCreate can tell its own leader-allocated case apart from a
// concurrent call that found the key already inserted.
type getOrCreateResult struct {
	img     *Image
	created bool
}

// GetOrCreate returns the image under key if present (ignoring params,
// per spec §4.2), else allocates and inserts one built from params.
// created reports whether this call's goroutine performed the insertion;
// a call that raced in as a singleflight follower, or whose closure found
// the key already inserted by a racing caller, reports created=false.
func (s *Store) GetOrCreate(key imagekey.Key, params Params) (img *Image, created bool) {
	if img, ok := s.Get(key); ok {
		return img, false
	}
	ran := false
	v, _, _ := s.alloc.Do(key.String(), func() (any, error) {
		ran = true
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.images[key]; ok {
			return getOrCreateResult{existing, false}, nil
		}
		img := newImage(key)
		img.Components = params.Components
		img.BitDepth = params.BitDepth
		img.PixelAspect = params.PixelAspect
		img.RoD = params.RoD
		img.MipLevel = params.MipLevel
		s.images[key] = img
		return getOrCreateResult{img, true}, nil
	})
	res := v.(getOrCreateResult)
	return res.img, res.created && ran
}

// Evict removes key from the store.
func (s *Store) Evict(key imagekey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, key)
}

// EvictAllWithHash removes every entry whose key carries nodeHash,
// used when a node-hash change invalidates a node's prior output (spec
// §4.2, §8 "no cached entry from the old hash remains").
func (s *Store) EvictAllWithHash(nodeHash uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.images {
		if k.NodeHash == nodeHash {
			delete(s.images, k)
		}
	}
}

// EvictWhere removes every entry for which pred returns true, used by
// the evaluator to drop RoD-dependent-on-project-format entries after a
// project format change (spec §4.3 step 8). pred receives the image
// itself, not just its key, since the project-format dependency is
// recorded on the image's RoD rather than anywhere in the key.
func (s *Store) EvictWhere(pred func(imagekey.Key, *Image) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, img := range s.images {
		if pred(k, img) {
			delete(s.images, k)
		}
	}
}

// Len returns the number of tracked images.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
