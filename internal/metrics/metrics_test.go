// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecordBusPublish(t *testing.T) {
	RecordBusPublish("file-download", nil)
	RecordBusPublish("file-download", errors.New("circuit open"))
}

func TestRecordBusConsume(t *testing.T) {
	RecordBusConsume("file-download")
}

func TestRecordIndexerBatch(t *testing.T) {
	tests := []struct {
		name     string
		ok       int
		errored  int
		dropped  int
		duration time.Duration
	}{
		{"clean batch", 50, 0, 0, 10 * time.Millisecond},
		{"partial failures", 40, 8, 2, 25 * time.Millisecond},
		{"empty batch", 0, 0, 0, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordIndexerBatch("file-download", tt.ok, tt.errored, tt.dropped, tt.duration)
		})
	}
}

func TestRecordAggregatorRun(t *testing.T) {
	RecordAggregatorRun("file-download-agg", 3, 2, 50*time.Millisecond, nil)
	RecordAggregatorRun("file-download-agg", 1, 0, 5*time.Millisecond, errors.New("store unavailable"))
}

func TestRecordBookmarkLag(t *testing.T) {
	RecordBookmarkLag("file-download-agg", 90*time.Second)
}

func TestRecordQuery(t *testing.T) {
	RecordQuery("file-download-histogram", 3*time.Millisecond, nil)
	RecordQuery("file-download-histogram", time.Millisecond, errors.New("invalid input"))
}

func TestRecordStoreOperation(t *testing.T) {
	RecordStoreOperation("bulk", "events-stats-file-download-202607", 12*time.Millisecond, nil)
	RecordStoreOperation("bulk", "events-stats-file-download-202607", 12*time.Millisecond, errors.New("disk full"))
}

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		BusPublishTotal,
		BusPublishErrors,
		BusConsumeTotal,
		BusCircuitBreakerState,
		IndexerEventsIndexed,
		IndexerEventsErrored,
		IndexerEventsDropped,
		IndexerBatchDuration,
		AggregatorRunDuration,
		AggregatorIntervalsProcessed,
		AggregatorPartitions,
		AggregatorErrors,
		BookmarkLagSeconds,
		QueryDuration,
		QueryErrors,
		StoreQueryDuration,
		StoreQueryErrors,
	}

	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		c.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric has no descriptors")
		}
	}
}

func BenchmarkRecordIndexerBatch(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordIndexerBatch("file-download", 50, 0, 0, 10*time.Millisecond)
	}
}

func BenchmarkRecordAggregatorRun(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAggregatorRun("file-download-agg", 3, 2, 50*time.Millisecond, nil)
	}
}
