// Package metrics exposes Prometheus instrumentation for the enrichment
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	QueueDepth        prometheus.Gauge
	ItemsEnqueued     prometheus.Counter
	ItemsSkipped      prometheus.Counter
	ItemsCompleted    prometheus.Counter
	ItemsFailed       prometheus.Counter
	LLMCalls          *prometheus.CounterVec
	LLMCallDuration   prometheus.Histogram
	TokensReserved    prometheus.Counter
	JSONRepairs       prometheus.Counter
	BroadcastsDropped prometheus.Counter
}

// NewMetrics creates new Prometheus metrics registered on reg. Pass a fresh
// registry in tests to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mailsense_enrichment_queue_depth",
			Help: "Number of items currently waiting in the enrichment queue",
		}),
		ItemsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_enrichment_items_enqueued_total",
			Help: "Total number of emails admitted to the enrichment queue",
		}),
		ItemsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_enrichment_items_skipped_total",
			Help: "Total number of emails rejected or skipped at admission",
		}),
		ItemsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_enrichment_items_completed_total",
			Help: "Total number of emails enriched successfully",
		}),
		ItemsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_enrichment_items_failed_total",
			Help: "Total number of emails that exhausted enrichment attempts",
		}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsense_llm_calls_total",
			Help: "Total number of analysis provider calls by outcome",
		}, []string{"outcome"}),
		LLMCallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailsense_llm_call_duration_seconds",
			Help:    "Time spent in analysis provider calls",
			Buckets: prometheus.DefBuckets,
		}),
		TokensReserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_llm_tokens_reserved_total",
			Help: "Total estimated tokens reserved against the rate budget",
		}),
		JSONRepairs: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_llm_json_repairs_total",
			Help: "Total number of responses that needed the JSON repair pass",
		}),
		BroadcastsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailsense_broadcasts_dropped_total",
			Help: "Total number of status events with no connected listener",
		}),
	}
}

// NewDefaultMetrics registers on the default Prometheus registry.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
