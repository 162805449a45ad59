package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/reillywatson/modelresolver/resolver"

	"github.com/google/uuid"
)

// ErrUnknownHandle is returned for handles that were never registered or
// have been released.
var ErrUnknownHandle = errors.New("unknown blob handle")

var _ resolver.BlobSource = &Registry{}

// Registry keeps the bytes behind ephemeral "blob:" handles in memory.
type Registry struct {
	origin string

	mu    sync.RWMutex
	blobs map[string]resolver.Blob
}

// NewRegistry creates a registry whose handles look like
// "blob:<origin>/<uuid>".
func NewRegistry(origin string) *Registry {
	return &Registry{
		origin: strings.TrimRight(origin, "/"),
		blobs:  make(map[string]resolver.Blob),
	}
}

// Register stores a copy of data and returns its handle.
func (r *Registry) Register(data []byte, contentType string) string {
	handle := fmt.Sprintf("%s%s/%s", resolver.LocalBlobPrefix, r.origin, uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[handle] = resolver.Blob{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}
	return handle
}

func (r *Registry) Fetch(ctx context.Context, handle string) (resolver.Blob, error) {
	if err := ctx.Err(); err != nil {
		return resolver.Blob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[handle]
	if !ok {
		return resolver.Blob{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return b, nil
}

// Release drops the bytes behind handle. It reports whether the handle was known.
func (r *Registry) Release(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blobs[handle]
	delete(r.blobs, handle)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
