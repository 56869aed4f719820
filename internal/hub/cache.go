package hub

import (
	"sync"
	"time"
)

// cacheEntry is one cached entity state with its refresh time.
type cacheEntry struct {
	state     *EntityState
	fetchedAt time.Time
}

// entityCache holds entity states with a freshness TTL. One instance per
// client, so one tenant's entities never leak into another's cache.
type entityCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newEntityCache(ttl time.Duration, now func() time.Time) *entityCache {
	if now == nil {
		now = time.Now
	}
	return &entityCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the cached state if present and younger than the TTL.
func (c *entityCache) get(entityID string) (*EntityState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[entityID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.state, true
}

// peek returns the cached state regardless of freshness. Used by the event
// path to supply OldState.
func (c *entityCache) peek(entityID string) (*EntityState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[entityID]
	if !ok {
		return nil, false
	}
	return entry.state, true
}

// set stores a state, refreshing its TTL. Stale writes are ignored:
// LastUpdated must be monotonically non-decreasing per entity within a
// session.
func (c *entityCache) set(state *EntityState) {
	if state == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[state.EntityID]; ok {
		if state.LastUpdated.Before(existing.state.LastUpdated) {
			return
		}
	}
	c.entries[state.EntityID] = cacheEntry{state: state, fetchedAt: c.now()}
}

// delete removes one entity.
func (c *entityCache) delete(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entityID)
}

// len returns the number of cached entities, fresh or stale.
func (c *entityCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
