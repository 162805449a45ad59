package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestHasBucket(t *testing.T) {
	buckets := []Bucket{{Name: "a"}, {Name: "product-models"}}
	assert.True(t, HasBucket(buckets, "product-models"))
	assert.False(t, HasBucket(buckets, "product"))
	assert.False(t, HasBucket(nil, "a"))
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Statement []struct {
			Effect    string
			Principal string
			Action    []string
			Resource  []string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("product-models")), &policy))
	require.Len(t, policy.Statement, 1)
	st := policy.Statement[0]
	assert.Equal(t, "Allow", st.Effect)
	assert.Equal(t, "*", st.Principal)
	assert.Equal(t, []string{"s3:GetObject"}, st.Action)
	assert.Equal(t, []string{"arn:aws:s3:::product-models/*"}, st.Resource)
}

func TestIsBucketExistsError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{&smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}, true},
		{fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "BucketAlreadyExists"}), true},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isBucketExistsError(tt.err), "%v", tt.err)
	}
}

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
	assert.True(t, isConflict(fmt.Errorf("create: %w", &googleapi.Error{Code: http.StatusConflict})))
	assert.False(t, isConflict(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isConflict(errors.New("plain")))
}

func TestIsMinIOBucketExists(t *testing.T) {
	assert.False(t, isMinIOBucketExists(nil))
	assert.True(t, isMinIOBucketExists(minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}))
	assert.True(t, isMinIOBucketExists(minio.ErrorResponse{Code: "BucketAlreadyExists"}))
	assert.False(t, isMinIOBucketExists(minio.ErrorResponse{Code: "AccessDenied"}))
}

func TestAmazonS3PublicURL(t *testing.T) {
	a := NewAmazonS3(nil, "eu-west-1", "", nil)
	url, err := a.PublicURL("product-models", "model-1.glb")
	require.NoError(t, err)
	assert.Equal(t, "https://product-models.s3.eu-west-1.amazonaws.com/model-1.glb", url)

	_, err = NewAmazonS3(nil, "", "", nil).PublicURL("b", "x")
	assert.Error(t, err)

	url, err = NewAmazonS3(nil, "", "https://cdn.test/", nil).PublicURL("b", "x.glb")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/b/x.glb", url)
}

func TestGoogleCloudStoragePublicURL(t *testing.T) {
	g := NewGoogleCloudStorage(nil, "project", "", nil)
	url, err := g.PublicURL("product-models", "model-1.glb")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/product-models/model-1.glb", url)
}

func TestMinIOPublicURL(t *testing.T) {
	client, err := NewMinIOClient(MinIOConfig{Endpoint: "localhost:9000", AccessKey: "key", SecretKey: "secret"})
	require.NoError(t, err)

	url, err := NewMinIO(client, "", "", nil).PublicURL("product-models", "model-1.glb")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/product-models/model-1.glb", url)

	url, err = NewMinIO(client, "", "https://cdn.test", nil).PublicURL("b", "x.glb")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/b/x.glb", url)
}
