package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.URL.Path == "/missing.glb" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := HTTPProber{Client: srv.Client()}
	ctx := context.Background()

	require.NoError(t, p.Probe(ctx, srv.URL+"/model.glb"))
	assert.ErrorContains(t, p.Probe(ctx, srv.URL+"/missing.glb"), "status 404")
	mu.Lock()
	assert.Equal(t, []string{http.MethodHead, http.MethodHead}, methods)
	mu.Unlock()

	assert.ErrorContains(t, p.Probe(ctx, "blob:http://localhost/abc-123"), "unsupported scheme")
	assert.Error(t, p.Probe(ctx, "://bad"))
}

func TestAllowsContentType(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.allowsContentType(""))
	assert.True(t, cfg.allowsContentType("Model/GLTF-Binary"))
	assert.True(t, cfg.allowsContentType("application/octet-stream; x=1"))
	assert.False(t, cfg.allowsContentType("image/png"))

	cfg.AllowedContentTypes = nil
	assert.True(t, cfg.allowsContentType("image/png"))
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, KindUploadFailed, wrap(KindUploadFailed, "Failed to upload 3D model", cause).Kind)

	timeout := wrap(KindUploadFailed, "Failed to upload 3D model", context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, timeout.Kind)
	assert.Equal(t, "timeout", timeout.Msg)

	assert.Equal(t, KindCanceled, wrap(KindUploadFailed, "x", context.Canceled).Kind)

	inner := newError(KindOversizedPayload, "too big", nil)
	assert.Same(t, inner, wrap(KindUploadFailed, "x", inner))
}

func TestBounded(t *testing.T) {
	v, err := bounded(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	block := make(chan struct{})
	defer close(block)
	_, err = bounded(context.Background(), 10*time.Millisecond, func(context.Context) (int, error) {
		<-block
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonotonicProgress(t *testing.T) {
	var got []int
	m := newMonotonic(func(p int) { got = append(got, p) })
	for _, p := range []int{0, 10, 10, 5, 40, 20, 100} {
		m.report(p)
	}
	assert.Equal(t, []int{0, 10, 40, 100}, got)

	f := newFlight()
	f.report(20)
	var late []int
	unsubscribe := f.subscribe(newMonotonic(func(p int) { late = append(late, p) }))
	f.report(40)
	unsubscribe()
	f.report(80)
	assert.Equal(t, []int{20, 40}, late)
}
