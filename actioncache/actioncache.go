// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package actioncache implements the per-node memoization of three
// pure-ish queries described in spec §4.1: region-of-definition,
// identity, and time-domain. It exists for correctness under recursive
// queries during a single render, not as a performance cache.
package actioncache

import (
	"sync"

	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/logx"
)

type rodKey struct {
	Time float64
	View int
	Mip  int
}

type identityEntry struct {
	InputIndex int
	InputTime  float64
}

// Cache memoizes one node's actions under its current hash tag. All
// operations serialize on a single mutex per instance (spec §4.1).
type Cache struct {
	mu sync.Mutex

	tag uint64

	rods       map[rodKey]geom.Rect
	identities map[rodKey]identityEntry
	haveTimeDomain bool
	first, last    float64
}

// New returns a cache tagged with the given initial node-hash.
func New(tag uint64) *Cache {
	return &Cache{
		tag:        tag,
		rods:       map[rodKey]geom.Rect{},
		identities: map[rodKey]identityEntry{},
	}
}

// GetRoD returns the cached region-of-definition for (time, view, mip)
// under the cache's current tag, or ok=false on a miss. Any lookup
// whose tag differs from the caller's would be a bug in the caller
// (tag mismatches are resolved by calling InvalidateAll first); GetRoD
// itself only ever answers against its own current tag.
func (c *Cache) GetRoD(time float64, view, mip int) (geom.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rods[rodKey{time, view, mip}]
	return r, ok
}

// SetRoD records the region-of-definition for (time, view, mip).
// First-write-wins: overwriting an existing entry is diagnosed and
// ignored, not an error returned to the caller (spec §4.1).
func (c *Cache) SetRoD(time float64, view, mip int, r geom.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := rodKey{time, view, mip}
	if _, exists := c.rods[k]; exists {
		logx.Logger.Warn("actioncache: overwriting existing RoD entry", "time", time, "view", view, "mip", mip)
		return
	}
	c.rods[k] = r
}

// GetIdentity returns the cached identity verdict for (time, view, mip).
func (c *Cache) GetIdentity(time float64, view, mip int) (inputIdx int, inputTime float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.identities[rodKey{time, view, mip}]
	return e.InputIndex, e.InputTime, ok
}

// SetIdentity records the identity verdict for (time, view, mip).
// Overwrites are permitted (spec §4.1), unlike SetRoD.
func (c *Cache) SetIdentity(time float64, view, mip int, inputIdx int, inputTime float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities[rodKey{time, view, mip}] = identityEntry{inputIdx, inputTime}
}

// GetTimeDomain returns the cached (first, last) frame range, if any.
func (c *Cache) GetTimeDomain() (first, last float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first, c.last, c.haveTimeDomain
}

// SetTimeDomain records the node's (first, last) frame range.
func (c *Cache) SetTimeDomain(first, last float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.first, c.last = first, last
	c.haveTimeDomain = true
}

// Tag returns the node-hash this cache instance currently answers for.
func (c *Cache) Tag() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

// InvalidateAll clears every table and adopts newHash as the current
// tag (spec §4.1 "a change of node-hash invalidates the entry
// wholesale").
func (c *Cache) InvalidateAll(newHash uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tag = newHash
	c.rods = map[rodKey]geom.Rect{}
	c.identities = map[rodKey]identityEntry{}
	c.haveTimeDomain = false
	c.first, c.last = 0, 0
}
