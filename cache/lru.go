package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU is an in-process resolution cache bounded by entry count and age.
type LRU struct {
	entries *expirable.LRU[string, string]
}

// NewLRU creates a cache holding at most size entries, each for at most ttl.
// A ttl of zero keeps entries until they are evicted by size.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{entries: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, reference string) (string, bool) {
	return c.entries.Get(reference)
}

func (c *LRU) Set(_ context.Context, reference, url string) {
	c.entries.Add(reference, url)
}

func (c *LRU) Len() int {
	return c.entries.Len()
}

func (c *LRU) Purge() {
	c.entries.Purge()
}
