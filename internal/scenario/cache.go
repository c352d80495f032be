package scenario

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"predictsim/internal/question"
)

// Cache is a TTL cache in front of a slow Source. When a refresh fails and a
// stale list is held, the stale list is served.
type Cache struct {
	mu        sync.RWMutex
	src       Source
	ttl       time.Duration
	entries   []question.Scenario
	fetchedAt time.Time
	now       func() time.Time
}

func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, now: time.Now}
}

func (c *Cache) get() ([]question.Scenario, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return append([]question.Scenario(nil), c.entries...), true
}

func (c *Cache) Scenarios(ctx context.Context) ([]question.Scenario, error) {
	if list, ok := c.get(); ok {
		return list, nil
	}

	list, err := c.src.Scenarios(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.fetchedAt.IsZero() {
			return nil, err
		}
		slog.Warn("scenario refresh failed, serving stale list", "age", c.now().Sub(c.fetchedAt), "error", err)
		return append([]question.Scenario(nil), c.entries...), nil
	}
	c.entries = list
	c.fetchedAt = c.now()
	return append([]question.Scenario(nil), list...), nil
}

// Invalidate forces the next call to refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
