package regime

import (
	"sync"

	"github.com/athang/pixiu/internal/domain"
)

type cacheKey struct {
	category domain.Category
	day      string
}

// stateCache memoizes detection results per (category, calendar day).
type stateCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]domain.RegimeState
}

func newStateCache() *stateCache {
	return &stateCache{entries: make(map[cacheKey]domain.RegimeState)}
}

func (c *stateCache) get(category domain.Category, day string) (domain.RegimeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.entries[cacheKey{category, day}]
	return st, ok
}

func (c *stateCache) put(category domain.Category, day string, st domain.RegimeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Drop entries from earlier days so the map does not grow
	// unbounded in a long-lived process.
	for k := range c.entries {
		if k.day != day {
			delete(c.entries, k)
		}
	}
	c.entries[cacheKey{category, day}] = st
}
