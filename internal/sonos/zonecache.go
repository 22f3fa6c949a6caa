package sonos

import (
	"sync"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/soap"
)

// ZoneGroupCache holds the last fetched zone group topology for a short
// TTL. Grouping commands and topology events invalidate it.
type ZoneGroupCache struct {
	mu       sync.Mutex
	state    *soap.ZoneGroupState
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewZoneGroupCache creates a new cache with the specified TTL.
func NewZoneGroupCache(ttl time.Duration) *ZoneGroupCache {
	return &ZoneGroupCache{ttl: ttl, now: time.Now}
}

// Get returns the cached state, or nil when empty or expired.
func (c *ZoneGroupCache) Get() *soap.ZoneGroupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked()
}

func (c *ZoneGroupCache) freshLocked() *soap.ZoneGroupState {
	if c.state == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.state
}

// Set stores the zone group state in the cache.
func (c *ZoneGroupCache) Set(state *soap.ZoneGroupState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.cachedAt = c.now()
}

// Invalidate clears the cache.
func (c *ZoneGroupCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = nil
	c.cachedAt = time.Time{}
}

// GetOrFetch returns the cached state if fresh, otherwise stores and
// returns the fetcher's result. Concurrent misses may each fetch.
func (c *ZoneGroupCache) GetOrFetch(fetcher func() (*soap.ZoneGroupState, error)) (*soap.ZoneGroupState, error) {
	if state := c.Get(); state != nil {
		return state, nil
	}

	state, err := fetcher()
	if err != nil {
		return nil, err
	}
	c.Set(state)
	return state, nil
}
