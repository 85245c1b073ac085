// Package metrics holds the Prometheus collectors shared by the relay and the image pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

// Turn outcomes
const (
	TurnOK       = "ok"
	TurnUpstream = "upstream_error"
	TurnRejected = "rejected"
	TurnDropped  = "dropped"
)

// Image fetch outcomes
const (
	ImageOK    = "ok"
	ImageError = "error"
)

// Metrics is the set of collectors exported on /metrics
type Metrics struct {
	ActiveConnections prometheus.Gauge
	Turns             *prometheus.CounterVec
	Chunks            prometheus.Counter
	Directives        prometheus.Counter
	ImageFetches      *prometheus.CounterVec
	ImageFetchSeconds prometheus.Histogram
}

// New registers a new set of collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open chat connections.",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns processed, by outcome.",
		}, []string{"outcome"}),
		Chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_chunks_total",
			Help:      "Completion stream chunks received.",
		}),
		Directives: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Turns whose output carried an image directive.",
		}),
		ImageFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_fetches_total",
			Help:      "Image variant fetches, by outcome.",
		}, []string{"outcome"}),
		ImageFetchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_fetch_duration_seconds",
			Help:      "Duration of image variant fetches.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
	}
}

// NewNop returns collectors registered to a throwaway registry, for tests and tools
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
