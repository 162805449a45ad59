package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reillywatson/modelresolver/resolver"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCountsResolutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver("test", reg)
	require.NoError(t, err)

	o.ObserveResolution(resolver.PathCache, time.Millisecond, nil)
	o.ObserveResolution(resolver.PathCache, time.Millisecond, nil)
	o.ObserveResolution(resolver.PathUpload, time.Second, &resolver.ValidationError{Kind: resolver.KindUploadFailed, Msg: "Failed to upload 3D model"})

	assert.Equal(t, 2.0, testutil.ToFloat64(o.resolutions.WithLabelValues("cache", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.resolutions.WithLabelValues("upload", "UploadFailed")))
}

func TestObserverUploadBytesOnlyOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver("test", reg)
	require.NoError(t, err)

	o.ObserveUpload(2048, time.Second, nil)
	o.ObserveUpload(4096, time.Second, errors.New("boom"))

	assert.Equal(t, 2048.0, testutil.ToFloat64(o.uploadBytes))
	assert.Equal(t, 2, testutil.CollectAndCount(o.uploadDuration))
}

func TestObserverProbeMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver("test", reg)
	require.NoError(t, err)

	o.ObserveProbeMiss()
	o.ObserveProbeMiss()
	assert.Equal(t, 2.0, testutil.ToFloat64(o.probeMisses))
}

func TestObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewObserver("test", reg)
	require.NoError(t, err)
	second, err := NewObserver("test", reg)
	require.NoError(t, err)

	first.ObserveProbeMiss()
	second.ObserveProbeMiss()
	assert.Equal(t, 2.0, testutil.ToFloat64(first.probeMisses))
}

func TestNilObserver(t *testing.T) {
	var o *Observer
	assert.NotPanics(t, func() {
		o.ObserveProbeMiss()
		o.ObserveUpload(1, time.Second, nil)
		o.ObserveResolution(resolver.PathProbe, time.Second, nil)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver("test", reg)
	require.NoError(t, err)
	o.ObserveProbeMiss()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_probe_misses_total 1")
}
