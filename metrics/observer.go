package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/reillywatson/modelresolver/resolver"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const outcomeOK = "ok"

var _ resolver.Observer = (*Observer)(nil)

// Observer exports resolver telemetry to Prometheus.
type Observer struct {
	resolutions    *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	uploadDuration *prometheus.HistogramVec
	probeMisses    prometheus.Counter
}

// NewObserver registers the resolver metrics on reg, reusing collectors that
// are already registered under the same names.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "modelresolver"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Model reference resolutions by rule and outcome.",
		}, []string{"path", "outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Cumulative size of models uploaded to object storage.",
		}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of the model upload flow.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		probeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_misses_total",
			Help:      "Reachability probes that did not succeed.",
		}),
	}

	var err error
	if o.resolutions, err = register(reg, o.resolutions); err != nil {
		return nil, fmt.Errorf("register resolutions counter: %w", err)
	}
	if o.uploadBytes, err = register(reg, o.uploadBytes); err != nil {
		return nil, fmt.Errorf("register upload bytes counter: %w", err)
	}
	if o.uploadDuration, err = register(reg, o.uploadDuration); err != nil {
		return nil, fmt.Errorf("register upload histogram: %w", err)
	}
	if o.probeMisses, err = register(reg, o.probeMisses); err != nil {
		return nil, fmt.Errorf("register probe misses counter: %w", err)
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (o *Observer) ObserveResolution(path resolver.Path, _ time.Duration, err error) {
	if o == nil {
		return
	}
	o.resolutions.WithLabelValues(string(path), outcome(err)).Inc()
}

func (o *Observer) ObserveUpload(sizeBytes int64, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.uploadDuration.WithLabelValues(outcome(err)).Observe(duration.Seconds())
	if err == nil {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

func (o *Observer) ObserveProbeMiss() {
	if o == nil {
		return
	}
	o.probeMisses.Inc()
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return string(resolver.KindOf(err))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
