// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the four pipeline stages that make up the telemetry
processing flow: bus publish/consume, indexer throughput, aggregator runs, and
the query engine.

# Overview

The package exposes counters, gauges, and histograms for:
  - Bus publish/consume counts and circuit breaker state (internal/bus)
  - Indexer batch throughput, error, and drop counts (internal/indexer)
  - Aggregator run duration, interval counts, and partition sizing (internal/aggregator)
  - Bookmark staleness (recorded by internal/aggregator when it commits a bookmark)
  - Query engine latency and error counts (internal/query)
  - Storage engine operation latency (RecordStoreOperation; internal/storeengine
    does not call it, so these series stay empty)

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Bus Metrics:
  - eventstats_bus_publish_total: Events published to the bus (counter)
    Labels: event_type
  - eventstats_bus_publish_errors_total: Publish failures (counter)
    Labels: event_type
  - eventstats_bus_consume_total: Events consumed from the bus (counter)
    Labels: event_type
  - eventstats_bus_circuit_breaker_state: Circuit breaker state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open

Indexer Metrics:
  - eventstats_indexer_events_indexed_total: Events written to the raw index (counter)
    Labels: event_type
  - eventstats_indexer_events_errored_total: Events that failed preprocessing/indexing (counter)
    Labels: event_type, reason
  - eventstats_indexer_events_dropped_total: Events dropped by a preprocessor chain (counter)
    Labels: event_type
  - eventstats_indexer_batch_duration_seconds: Duration of one batch flush (histogram)
    Labels: event_type

Aggregator Metrics:
  - eventstats_aggregator_run_duration_seconds: Duration of one Run() invocation (histogram)
    Labels: aggregation
  - eventstats_aggregator_intervals_processed_total: Bucketed intervals stepped through (counter)
    Labels: aggregation
  - eventstats_aggregator_partitions: Terms-aggregation partitions in the most recent interval (gauge)
    Labels: aggregation
  - eventstats_aggregator_errors_total: Aggregator run failures (counter)
    Labels: aggregation, reason

Bookmark Metrics:
  - eventstats_bookmark_lag_seconds: Seconds between now and the committed bookmark (gauge)
    Labels: aggregation

Query Metrics:
  - eventstats_query_duration_seconds: Duration of a named query execution (histogram)
    Labels: query
  - eventstats_query_errors_total: Query execution failures (counter)
    Labels: query, reason

Storage Engine Metrics:
  - eventstats_store_query_duration_seconds: DuckDB-backed operation duration (histogram)
    Labels: operation, index
  - eventstats_store_query_errors_total: Storage engine operation failures (counter)
    Labels: operation, index

# Usage Example

	import (
	    "github.com/tomtom215/eventstats/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())

	    metrics.RecordBusPublish("file-download", nil)
	    metrics.RecordIndexerBatch("file-download", 48, 2, 0, 12*time.Millisecond)
	}

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'eventstats'
	    static_configs:
	      - targets: ['localhost:8080']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

Label cardinality is bounded by the number of registered event types,
aggregation names, and query names — all fixed at startup by configuration,
never by request-derived values.
*/
package metrics
