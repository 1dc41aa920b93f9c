package collector

import (
	"context"
	"sync"
	"time"

	"herb-collector/internal/domain"
)

const DefaultCacheTTL = 5 * time.Minute

// RemoteCache holds the last server listing. Entries go stale after the TTL
// and are refetched on the next read; Invalidate forces that early.
type RemoteCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	records   []domain.CollectionRecord
	fetchedAt time.Time
	valid     bool

	// gen advances on every Invalidate; a fetch that overlaps one is kept
	// but not marked fresh.
	gen uint64
}

func NewRemoteCache(ttl time.Duration) *RemoteCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RemoteCache{ttl: ttl, now: time.Now}
}

// Get returns the cached listing when fresh, otherwise calls fetch. When fetch
// fails the stale listing is returned alongside the error.
func (c *RemoteCache) Get(ctx context.Context, fetch func(context.Context) ([]domain.CollectionRecord, error)) ([]domain.CollectionRecord, error) {
	if records, ok := c.Fresh(); ok {
		return records, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	records, err := fetch(ctx)
	if err != nil {
		stale, _ := c.Cached()
		return stale, err
	}

	c.mu.Lock()
	c.records = records
	c.fetchedAt = c.now()
	c.valid = c.gen == gen
	c.mu.Unlock()

	return records, nil
}

func (c *RemoteCache) Fresh() ([]domain.CollectionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.records, true
}

// Cached returns whatever listing is held, fresh or not.
func (c *RemoteCache) Cached() ([]domain.CollectionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, !c.fetchedAt.IsZero()
}

func (c *RemoteCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.gen++
}
