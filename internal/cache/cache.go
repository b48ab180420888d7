// Package cache provides process-local, byte-budgeted LRU caches that
// let repeat ingests skip conversion and embedding work.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBudgetBytes is the combined budget for all caches.
const DefaultBudgetBytes = 128 << 20

// ByteLRU is an LRU map bounded by the total byte size of its values
// rather than by entry count. Safe for concurrent use.
type ByteLRU[K comparable, V any] struct {
	mu     sync.Mutex
	lru    *lru.Cache[K, V]
	size   func(V) int
	budget int
	total  int
}

// NewByteLRU creates a cache holding up to budget bytes of values, as
// measured by the size function.
func NewByteLRU[K comparable, V any](budget int, size func(V) int) (*ByteLRU[K, V], error) {
	c := &ByteLRU[K, V]{size: size, budget: budget}

	// Entry cap sized so the byte budget binds first in practice.
	capEntries := budget / 16
	if capEntries < 16 {
		capEntries = 16
	}

	inner, err := lru.NewWithEvict[K, V](capEntries, func(_ K, v V) {
		c.total -= c.size(v)
	})
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// Get returns the cached value for key, if present.
func (c *ByteLRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Add stores value under key, evicting least recently used entries
// until the byte budget is respected. Values larger than the whole
// budget are not cached.
func (c *ByteLRU[K, V]) Add(key K, value V) {
	sz := c.size(value)
	if sz > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing an entry does not fire the evict callback, so settle
	// the old size by removing it first.
	c.lru.Remove(key)

	c.lru.Add(key, value)
	c.total += sz

	for c.total > c.budget {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Remove drops the entry for key, if present.
func (c *ByteLRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the number of cached entries.
func (c *ByteLRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the current total size of cached values.
func (c *ByteLRU[K, V]) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// VectorKey identifies one chunk's embedding for one model.
type VectorKey struct {
	ContentHash string
	Model       string
	ChunkIndex  int
}

// Caches bundles the ingest caches. The budget is split with the
// larger share on vectors, which dominate repeat-ingest cost.
type Caches struct {
	// Markdown maps a source content hash to converted Markdown.
	Markdown *ByteLRU[string, string]

	// Vectors maps (content hash, model, chunk index) to an embedding.
	Vectors *ByteLRU[VectorKey, []float32]
}

// New creates the cache bundle with the given total byte budget. A
// non-positive budget falls back to DefaultBudgetBytes.
func New(budget int) (*Caches, error) {
	if budget <= 0 {
		budget = DefaultBudgetBytes
	}

	md, err := NewByteLRU[string, string](budget/4, func(v string) int {
		return len(v)
	})
	if err != nil {
		return nil, err
	}

	vec, err := NewByteLRU[VectorKey, []float32](budget-budget/4, func(v []float32) int {
		return 4 * len(v)
	})
	if err != nil {
		return nil, err
	}

	return &Caches{Markdown: md, Vectors: vec}, nil
}
