// Package metrics provides Prometheus instrumentation for feature extraction
// and batch matching. All metrics are prefixed with "cover_matcher_".
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item status label values
const (
	StatusMatched   = "matched"
	StatusUnmatched = "unmatched"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Extraction metrics
var (
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cover_matcher_extractions_total",
			Help: "Total number of photo feature extractions",
		},
		[]string{"result"}, // "ok", "fallback"
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cover_matcher_extraction_duration_seconds",
			Help:    "Photo feature extraction duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	VisionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cover_matcher_vision_errors_total",
			Help: "Total number of vision model failures replaced by neutral values",
		},
		[]string{"capability"}, // "pose", "faces", "embed"
	)
)

// Feature cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cover_matcher_feature_cache_hits_total",
			Help: "Total number of feature cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cover_matcher_feature_cache_misses_total",
			Help: "Total number of feature cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cover_matcher_feature_cache_evictions_total",
			Help: "Total number of feature sets evicted from the cache",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cover_matcher_feature_cache_entries",
			Help: "Number of feature sets currently cached",
		},
	)
)

// Batch metrics
var (
	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cover_matcher_batches_total",
			Help: "Total number of batch match runs",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cover_matcher_batch_duration_seconds",
			Help:    "Batch match wall-clock duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cover_matcher_items_total",
			Help: "Total number of batch items by final status",
		},
		[]string{"status"},
	)

	ItemsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cover_matcher_items_in_flight",
			Help: "Number of batch items currently being matched",
		},
	)

	MatchConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cover_matcher_match_confidence",
			Help:    "Confidence of primary matches",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
)

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
