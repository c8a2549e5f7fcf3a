// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package aggregator

import (
	"fmt"
	"time"
)

// Interval is a bucketing granularity for both the aggregation step size
// and the index partitioning granularity (§4.2 invariant: "interval ≤
// index_interval; strict order among hour < day < month").
type Interval int

const (
	Hour Interval = iota
	Day
	Month
)

// rank gives Interval a total order so aggregation_interval ≤ index_interval
// can be checked with a plain comparison.
func (i Interval) rank() int { return int(i) }

// String renders the interval name used in config and CLI output.
func (i Interval) String() string {
	switch i {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Month:
		return "month"
	default:
		return "unknown"
	}
}

// ParseInterval parses the config/CLI spelling of an interval.
func ParseInterval(s string) (Interval, error) {
	switch s {
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	case "month":
		return Month, nil
	default:
		return 0, fmt.Errorf("aggregator: unknown interval %q", s)
	}
}

// Floor truncates t down to the start of its interval bucket, in UTC.
func (i Interval) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch i {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Next returns the start of the interval bucket immediately following t's bucket.
func (i Interval) Next(t time.Time) time.Time {
	start := i.Floor(t)
	switch i {
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Format renders a bucket's start time the way the rollup document id does
// for this interval (%Y-%m-%dT%H | %Y-%m-%d | %Y-%m).
func (i Interval) Format(t time.Time) string {
	switch i {
	case Hour:
		return t.UTC().Format("2006-01-02T15")
	case Day:
		return t.UTC().Format("2006-01-02")
	case Month:
		return t.UTC().Format("2006-01")
	default:
		return t.UTC().Format(time.RFC3339)
	}
}

// MonthIndexSuffix returns the "%Y-%m" suffix used for rollup index naming
// regardless of the aggregation interval (§4.2: "month index regardless of
// interval").
func MonthIndexSuffix(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ValidateOrder enforces aggregation_interval ≤ index_interval.
func ValidateOrder(aggInterval, indexInterval Interval) error {
	if aggInterval.rank() > indexInterval.rank() {
		return fmt.Errorf("aggregator: aggregation interval %s is coarser than index interval %s", aggInterval, indexInterval)
	}
	return nil
}

// Steps splits [start, end) into interval-sized steps, including a final
// residual partial step if end doesn't land on a bucket boundary (§4.4 step
// 4: "include the residual partial at the end").
func Steps(interval Interval, start, end time.Time) []time.Time {
	if !end.After(start) {
		return nil
	}
	var steps []time.Time
	for dt := interval.Floor(start); dt.Before(end); dt = interval.Next(dt) {
		steps = append(steps, dt)
	}
	return steps
}
