package cache

import "context"

// Store is the interface every cache in this package implements.
type Store interface {
	Get(ctx context.Context, reference string) (string, bool)
	Set(ctx context.Context, reference, url string)
}

// Tiered reads through a fast first level into a shared second level.
// Second level hits are copied into the first level.
type Tiered struct {
	l1 Store
	l2 Store
}

func NewTiered(l1, l2 Store) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

func (c *Tiered) Get(ctx context.Context, reference string) (string, bool) {
	if url, ok := c.l1.Get(ctx, reference); ok {
		return url, true
	}
	url, ok := c.l2.Get(ctx, reference)
	if ok {
		c.l1.Set(ctx, reference, url)
	}
	return url, ok
}

func (c *Tiered) Set(ctx context.Context, reference, url string) {
	c.l1.Set(ctx, reference, url)
	c.l2.Set(ctx, reference, url)
}
