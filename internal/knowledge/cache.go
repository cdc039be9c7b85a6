package knowledge

import (
	"context"
	"strings"
	"sync"

	"rageraps/internal/domain"
)

// RoundCache memoizes retrieval for the duration of one round so that
// concurrent producers asking for the same entity hit the backing store
// at most once. A fresh cache is created per round; entries never expire.
type RoundCache struct {
	next Retriever

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

type cacheKey struct {
	entity string
	style  string
	kind   string
	k      int
}

type cacheEntry struct {
	snippets []domain.Snippet
	err      error
}

func NewRoundCache(next Retriever) *RoundCache {
	return &RoundCache{next: next, entries: make(map[cacheKey]cacheEntry)}
}

func (c *RoundCache) Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error) {
	key := cacheKey{entity: strings.ToLower(strings.TrimSpace(entity)), style: style, kind: kind, k: k}

	// The lock is held across the fetch so concurrent misses for the
	// same key collapse into a single store call.
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.snippets, e.err
	}
	snippets, err := c.next.Retrieve(ctx, entity, style, kind, k)
	c.entries[key] = cacheEntry{snippets: snippets, err: err}
	return snippets, err
}
