package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythic_generation_requests_total",
			Help: "Total number of calls to the generation backend.",
		},
		[]string{"kind", "status"},
	)
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mythic_generation_duration_seconds",
			Help:    "Histogram of generation backend call durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	imageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythic_image_cache_lookups_total",
			Help: "Image cache lookups by result.",
		},
		[]string{"result"},
	)
)

func observeRequest(kind string, start time.Time, err error) {
	generationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	status := "success"
	switch {
	case err == nil:
	case Retryable(err):
		status = "retryable_error"
	default:
		status = "error"
	}
	generationRequestsTotal.WithLabelValues(kind, status).Inc()
}
