// Package metrics exposes Prometheus metrics for the request pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the assistant pipeline.
type Metrics struct {
	// Request flow
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Routing
	RoutingDecisionsTotal *prometheus.CounterVec

	// Generation
	GenerationAttemptsTotal *prometheus.CounterVec
	QualityScore            prometheus.Histogram

	// Cache performance
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Learning
	FeedbackEventsTotal *prometheus.CounterVec
	LearnQueueDropped   prometheus.Counter
}

// NewMetrics creates and registers pipeline metrics.
//
// sync.Once guards registration so repeated construction cannot panic
// with duplicate collectors.
//
// All metrics are prefixed with "assistant_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_requests_total",
					Help: "Total chat requests by outcome",
				},
				[]string{"status"}, // "ok" or "error"
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "assistant_request_duration_seconds",
					Help:    "End-to-end chat request duration",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model_key"},
			),
			RoutingDecisionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_routing_decisions_total",
					Help: "Routing decisions by source",
				},
				[]string{"source"}, // "forced", "learned", "static"
			),
			GenerationAttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_generation_attempts_total",
					Help: "Generation attempts by outcome",
				},
				[]string{"outcome"}, // "accepted", "rejected", "error"
			),
			QualityScore: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "assistant_quality_score",
					Help:    "Combined quality score of generated answers",
					Buckets: prometheus.LinearBuckets(0, 0.1, 11),
				},
			),
			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assistant_cache_hits_total",
					Help: "Preprocessing cache hits",
				},
			),
			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assistant_cache_misses_total",
					Help: "Preprocessing cache misses",
				},
			),
			FeedbackEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_feedback_events_total",
					Help: "Recorded feedback events by implicit signal",
				},
				[]string{"signal"},
			),
			LearnQueueDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assistant_learn_queue_dropped_total",
					Help: "Feedback events dropped because the learn queue was full",
				},
			),
		}
	})
	return globalMetrics
}
