package local

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reillywatson/modelresolver/storage/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("https://objects.test/")

	require.NoError(t, m.CreateBucket(ctx, "b", remote.BucketOptions{MaxObjectBytes: 4}))
	assert.ErrorIs(t, m.CreateBucket(ctx, "b", remote.BucketOptions{}), remote.ErrBucketExists)
	require.NoError(t, m.SetBucketPublic(ctx, "b"))
	assert.Error(t, m.SetBucketPublic(ctx, "missing"))

	buckets, err := m.ListBuckets(ctx)
	require.NoError(t, err)
	assert.True(t, remote.HasBucket(buckets, "b"))
	assert.False(t, remote.HasBucket(buckets, "c"))

	opts := remote.UploadOptions{ContentType: "model/gltf-binary"}
	require.NoError(t, m.UploadObject(ctx, "b", "x.glb", strings.NewReader("glTF"), 4, opts))
	assert.ErrorContains(t, m.UploadObject(ctx, "b", "y.glb", strings.NewReader("glTF!"), 5, opts), "exceeds bucket limit")

	data, gotOpts, ok := m.Object("b", "x.glb")
	require.True(t, ok)
	assert.Equal(t, []byte("glTF"), data)
	assert.Equal(t, opts, gotOpts)
	assert.Equal(t, []string{"x.glb"}, m.Objects("b"))

	url, err := m.PublicURL("b", "x.glb")
	require.NoError(t, err)
	assert.Equal(t, "https://objects.test/b/x.glb", url)
	assert.Equal(t, 1, m.PublicCalls())
}

func TestMemoryFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	m := NewMemory("https://objects.test")
	m.SetFailures(Failures{List: boom, PublicURL: boom})

	_, err := m.ListBuckets(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = m.PublicURL("b", "x")
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, m.Count.ListErrors.Load())

	m.SetFailures(Failures{})
	_, err = m.ListBuckets(ctx)
	assert.NoError(t, err)
}

func TestMemoryDelayHonorsContext(t *testing.T) {
	m := NewMemory("https://objects.test")
	m.SetDelay(OperationDelay{List: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.ListBuckets(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
