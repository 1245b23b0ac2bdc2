package tracking

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedTracker caches entity contexts in front of another Tracker.
// Contexts are stable for the life of a scan; call Purge on rescan.
type CachedTracker struct {
	Tracker

	contexts *lru.Cache[string, *Context]
}

// NewCachedTracker wraps inner with an LRU of the given size.
func NewCachedTracker(inner Tracker, size int) (*CachedTracker, error) {
	cache, err := lru.New[string, *Context](size)
	if err != nil {
		return nil, err //nolint:wrapcheck // Only fails on non-positive size
	}

	return &CachedTracker{Tracker: inner, contexts: cache}, nil
}

// ContextFromEntity returns the cached context or loads it.
func (c *CachedTracker) ContextFromEntity(ctx context.Context, entityType string, id int) (*Context, error) {
	key := recordKey(entityType, id)
	if cached, ok := c.contexts.Get(key); ok {
		return cached, nil
	}

	tctx, err := c.Tracker.ContextFromEntity(ctx, entityType, id)
	if err != nil {
		return nil, err //nolint:wrapcheck // Decorator passes errors through
	}

	c.contexts.Add(key, tctx)

	return tctx, nil
}

// Len returns the number of cached contexts.
func (c *CachedTracker) Len() int {
	return c.contexts.Len()
}

// Purge drops every cached context.
func (c *CachedTracker) Purge() {
	c.contexts.Purge()
}
