package cache

import (
	"sync"

	"github.com/golang/geo/r3"
)

// OffsetCache maps marker ids to their world-frame offsets for the current
// session. Populated once at session start, read on every frame.
type OffsetCache struct {
	mu      sync.RWMutex
	offsets map[int]r3.Vector
}

// NewOffsetCache creates a new OffsetCache
func NewOffsetCache() *OffsetCache {
	return &OffsetCache{
		offsets: make(map[int]r3.Vector),
	}
}

// Get retrieves an offset by marker id
func (c *OffsetCache) Get(id int) (r3.Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.offsets[id]
	return v, ok
}

// Set stores an offset by marker id
func (c *OffsetCache) Set(id int, v r3.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets[id] = v
}

// Load replaces the whole table in one call
func (c *OffsetCache) Load(offsets map[int]r3.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets = make(map[int]r3.Vector, len(offsets))
	for id, v := range offsets {
		c.offsets[id] = v
	}
}

// Snapshot returns a copy of the current table
func (c *OffsetCache) Snapshot() map[int]r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]r3.Vector, len(c.offsets))
	for id, v := range c.offsets {
		out[id] = v
	}
	return out
}

// Delete removes an offset by marker id
func (c *OffsetCache) Delete(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.offsets, id)
}

// Reset clears all offsets from the cache
func (c *OffsetCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets = make(map[int]r3.Vector)
}
