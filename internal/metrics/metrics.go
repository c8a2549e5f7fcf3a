// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package instruments the four pipeline stages:
// - Bus publish/consume (NATS JetStream via Watermill)
// - Indexer throughput and per-batch error counts
// - Aggregator run duration, partition counts, and bookmark lag
// - Query engine latency

var (
	// Bus Metrics
	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_bus_publish_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"event_type"},
	)

	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_bus_publish_errors_total",
			Help: "Total number of bus publish failures",
		},
		[]string{"event_type"},
	)

	BusConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_bus_consume_total",
			Help: "Total number of events consumed from the bus",
		},
		[]string{"event_type"},
	)

	BusCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventstats_bus_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Indexer Metrics
	IndexerEventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_indexer_events_indexed_total",
			Help: "Total number of events successfully written to the raw index",
		},
		[]string{"event_type"},
	)

	IndexerEventsErrored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_indexer_events_errored_total",
			Help: "Total number of events that failed preprocessing or indexing",
		},
		[]string{"event_type", "reason"},
	)

	IndexerEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_indexer_events_dropped_total",
			Help: "Total number of events dropped by a preprocessor chain",
		},
		[]string{"event_type"},
	)

	IndexerBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstats_indexer_batch_duration_seconds",
			Help:    "Duration of one indexer batch flush",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Aggregator Metrics
	AggregatorRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstats_aggregator_run_duration_seconds",
			Help:    "Duration of one aggregator Run() invocation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"aggregation"},
	)

	AggregatorIntervalsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_aggregator_intervals_processed_total",
			Help: "Total number of bucketed intervals the aggregator has stepped through",
		},
		[]string{"aggregation"},
	)

	AggregatorPartitions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventstats_aggregator_partitions",
			Help: "Number of terms-aggregation partitions used in the most recent interval",
		},
		[]string{"aggregation"},
	)

	AggregatorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_aggregator_errors_total",
			Help: "Total number of aggregator run failures",
		},
		[]string{"aggregation", "reason"},
	)

	// Bookmark Metrics
	BookmarkLagSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventstats_bookmark_lag_seconds",
			Help: "Seconds between now and the most recently committed bookmark",
		},
		[]string{"aggregation"},
	)

	// Query Metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstats_query_duration_seconds",
			Help:    "Duration of a named query execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_query_errors_total",
			Help: "Total number of query execution failures",
		},
		[]string{"query", "reason"},
	)

	// Storage Engine Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventstats_store_query_duration_seconds",
			Help:    "Duration of DuckDB-backed storage engine operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "index"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventstats_store_query_errors_total",
			Help: "Total number of storage engine operation failures",
		},
		[]string{"operation", "index"},
	)
)

// RecordBusPublish records a successful or failed publish for eventType.
func RecordBusPublish(eventType string, err error) {
	if err != nil {
		BusPublishErrors.WithLabelValues(eventType).Inc()
		return
	}
	BusPublishTotal.WithLabelValues(eventType).Inc()
}

// RecordBusConsume records one event dequeued for eventType.
func RecordBusConsume(eventType string) {
	BusConsumeTotal.WithLabelValues(eventType).Inc()
}

// RecordIndexerBatch records the outcome of one indexer batch flush.
func RecordIndexerBatch(eventType string, ok, errored, dropped int, duration time.Duration) {
	if ok > 0 {
		IndexerEventsIndexed.WithLabelValues(eventType).Add(float64(ok))
	}
	if errored > 0 {
		IndexerEventsErrored.WithLabelValues(eventType, "index_error").Add(float64(errored))
	}
	if dropped > 0 {
		IndexerEventsDropped.WithLabelValues(eventType).Add(float64(dropped))
	}
	IndexerBatchDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordAggregatorRun records one Run() invocation's duration, intervals
// and partition count; a partitions value of 0 leaves the partitions gauge
// unchanged.
func RecordAggregatorRun(aggregation string, intervals, partitions int, duration time.Duration, err error) {
	AggregatorRunDuration.WithLabelValues(aggregation).Observe(duration.Seconds())
	if intervals > 0 {
		AggregatorIntervalsProcessed.WithLabelValues(aggregation).Add(float64(intervals))
	}
	if partitions > 0 {
		AggregatorPartitions.WithLabelValues(aggregation).Set(float64(partitions))
	}
	if err != nil {
		AggregatorErrors.WithLabelValues(aggregation, "run_error").Inc()
	}
}

// RecordBookmarkLag reports the staleness of the committed bookmark for aggregation.
func RecordBookmarkLag(aggregation string, lag time.Duration) {
	BookmarkLagSeconds.WithLabelValues(aggregation).Set(lag.Seconds())
}

// RecordQuery records one named-query execution.
func RecordQuery(query string, duration time.Duration, err error) {
	QueryDuration.WithLabelValues(query).Observe(duration.Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(query, "execution_error").Inc()
	}
}

// RecordStoreOperation records one storage engine call.
func RecordStoreOperation(operation, index string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation, index).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation, index).Inc()
	}
}
