// Package analysis caches analysis results per IR unit and applies the
// preserved-set invalidation contract.
package analysis

import "sync"

// Result is a cacheable analysis product. Invalidate reports whether the
// result must be recomputed for the unit given the set of preserved
// analysis names ("all" preserves everything; a nil set preserves
// everything).
type Result interface {
	Name() string
	Invalidate(unit any, preserved map[string]bool) bool
}

type cacheKey struct {
	name string
	unit any
}

// Cache owns analysis results keyed by (analysis name, IR unit).
type Cache struct {
	mu      sync.Mutex
	results map[cacheKey]Result
}

func NewCache() *Cache {
	return &Cache{results: make(map[cacheKey]Result)}
}

// Get returns the cached result for (name, unit), computing and caching
// it on a miss.
func (c *Cache) Get(name string, unit any, compute func() Result) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{name: name, unit: unit}
	if r, ok := c.results[key]; ok {
		return r
	}
	r := compute()
	c.results[key] = r
	return r
}

// Invalidate drops every cached result of the unit that does not survive
// the preserved set.
func (c *Cache) Invalidate(unit any, preserved map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, r := range c.results {
		if key.unit != unit {
			continue
		}
		if r.Invalidate(unit, preserved) {
			delete(c.results, key)
		}
	}
}

// InvalidateAll drops every result that does not survive the preserved
// set, regardless of unit.
func (c *Cache) InvalidateAll(preserved map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, r := range c.results {
		if r.Invalidate(key.unit, preserved) {
			delete(c.results, key)
		}
	}
}
