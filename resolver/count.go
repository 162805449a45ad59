package resolver

import (
	"fmt"
	"sync/atomic"
)

// Count tracks resolutions by outcome.
type Count struct {
	Resolves     atomic.Int64
	CacheHits    atomic.Int64
	ProbeHits    atomic.Int64
	ProbeMisses  atomic.Int64
	StorageHits  atomic.Int64
	External     atomic.Int64
	Uploads      atomic.Int64
	Shared       atomic.Int64
	UploadErrors atomic.Int64
	Buckets      atomic.Int64
}

func (c *Count) Summary() string {
	resolvesLine := fmt.Sprintf("[resolver] %d resolves, %d cache hits, %d probe hits, %d probe misses, %d storage, %d external", c.Resolves.Load(), c.CacheHits.Load(), c.ProbeHits.Load(), c.ProbeMisses.Load(), c.StorageHits.Load(), c.External.Load())
	uploadsLine := fmt.Sprintf("[resolver] %d uploads, %d shared waits, %d errors, %d buckets created", c.Uploads.Load(), c.Shared.Load(), c.UploadErrors.Load(), c.Buckets.Load())

	return fmt.Sprintf("%s\n%s", resolvesLine, uploadsLine)
}
