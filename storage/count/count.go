package count

import (
	"fmt"
	"sync/atomic"
)

// Count tracks object store operations. Backends embed it.
type Count struct {
	Lists        atomic.Int64
	Creates      atomic.Int64
	Uploads      atomic.Int64
	UploadBytes  atomic.Int64
	ListErrors   atomic.Int64
	CreateErrors atomic.Int64
	UploadErrors atomic.Int64
}

func (c *Count) Summary(kind string) string {
	bucketsLine := fmt.Sprintf("[%s] %d lists, %d creates, %d list errors, %d create errors", kind, c.Lists.Load(), c.Creates.Load(), c.ListErrors.Load(), c.CreateErrors.Load())
	uploadsLine := fmt.Sprintf("[%s] %d uploads (%d bytes), %d errors", kind, c.Uploads.Load(), c.UploadBytes.Load(), c.UploadErrors.Load())

	return fmt.Sprintf("%s\n%s", bucketsLine, uploadsLine)
}
