// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package aggregator

import (
	"fmt"
	"strings"
)

// MetricOp names one of the statistical aggregation operators a rollup's
// metric-field spec can request (§4.4: "op ∈ {avg, cardinality,
// extended_stats, geo_centroid, max, min, percentiles, stats, sum}").
type MetricOp string

const (
	MetricAvg           MetricOp = "avg"
	MetricCardinality   MetricOp = "cardinality"
	MetricExtendedStats MetricOp = "extended_stats"
	MetricGeoCentroid   MetricOp = "geo_centroid"
	MetricMax           MetricOp = "max"
	MetricMin           MetricOp = "min"
	MetricPercentiles   MetricOp = "percentiles"
	MetricStats         MetricOp = "stats"
	MetricSum           MetricOp = "sum"
)

// DefaultPercentiles mirrors the common statistics-dashboard set.
var DefaultPercentiles = []float64{1, 5, 25, 50, 75, 95, 99}

// MetricSpec declares one rollup metric field: how to compute Dst from Src.
type MetricSpec struct {
	Op          MetricOp
	Src         string
	Percentiles []float64 // only consulted when Op == MetricPercentiles
}

// Validate checks the op is known and Src is set.
func (m MetricSpec) Validate() error {
	if m.Src == "" {
		return fmt.Errorf("aggregator: metric field: source column is required")
	}
	switch m.Op {
	case MetricAvg, MetricCardinality, MetricExtendedStats, MetricGeoCentroid,
		MetricMax, MetricMin, MetricPercentiles, MetricStats, MetricSum:
		return nil
	default:
		return fmt.Errorf("aggregator: unknown metric op %q", m.Op)
	}
}

// selectExprs returns the SQL select-list fragments needed to compute this
// metric, and the list of result-column aliases they produce (in the same
// order), so the caller can pull the right columns back out of the result
// row. Every metric op expands to one or more plain DuckDB aggregates —
// there's no single "metric" SQL function, mirroring how a search engine's
// sub-aggregations are really just named reducers over the bucket.
func (m MetricSpec) selectExprs(dst string) (exprs []string, cols []string) {
	col := quoteIdent(m.Src)
	switch m.Op {
	case MetricSum:
		c := dst + "__sum"
		return []string{fmt.Sprintf("SUM(%s) AS %s", col, c)}, []string{c}
	case MetricAvg:
		c := dst + "__avg"
		return []string{fmt.Sprintf("AVG(%s) AS %s", col, c)}, []string{c}
	case MetricMin:
		c := dst + "__min"
		return []string{fmt.Sprintf("MIN(%s) AS %s", col, c)}, []string{c}
	case MetricMax:
		c := dst + "__max"
		return []string{fmt.Sprintf("MAX(%s) AS %s", col, c)}, []string{c}
	case MetricCardinality:
		c := dst + "__cardinality"
		return []string{fmt.Sprintf("approx_count_distinct(%s) AS %s", col, c)}, []string{c}
	case MetricStats:
		cCount, cMin, cMax, cAvg, cSum := dst+"__count", dst+"__min", dst+"__max", dst+"__avg", dst+"__sum"
		return []string{
			fmt.Sprintf("COUNT(%s) AS %s", col, cCount),
			fmt.Sprintf("MIN(%s) AS %s", col, cMin),
			fmt.Sprintf("MAX(%s) AS %s", col, cMax),
			fmt.Sprintf("AVG(%s) AS %s", col, cAvg),
			fmt.Sprintf("SUM(%s) AS %s", col, cSum),
		}, []string{cCount, cMin, cMax, cAvg, cSum}
	case MetricExtendedStats:
		cCount, cMin, cMax, cAvg, cSum := dst+"__count", dst+"__min", dst+"__max", dst+"__avg", dst+"__sum"
		cStdDev, cVariance := dst+"__std_deviation", dst+"__variance"
		return []string{
			fmt.Sprintf("COUNT(%s) AS %s", col, cCount),
			fmt.Sprintf("MIN(%s) AS %s", col, cMin),
			fmt.Sprintf("MAX(%s) AS %s", col, cMax),
			fmt.Sprintf("AVG(%s) AS %s", col, cAvg),
			fmt.Sprintf("SUM(%s) AS %s", col, cSum),
			fmt.Sprintf("STDDEV_POP(%s) AS %s", col, cStdDev),
			fmt.Sprintf("VAR_POP(%s) AS %s", col, cVariance),
		}, []string{cCount, cMin, cMax, cAvg, cSum, cStdDev, cVariance}
	case MetricPercentiles:
		pcts := m.Percentiles
		if len(pcts) == 0 {
			pcts = DefaultPercentiles
		}
		fractions := make([]string, len(pcts))
		for i, p := range pcts {
			fractions[i] = fmt.Sprintf("%g", p/100)
		}
		c := dst + "__percentiles"
		expr := fmt.Sprintf("quantile_cont(%s, [%s]) AS %s", col, strings.Join(fractions, ", "), c)
		return []string{expr}, []string{c}
	case MetricGeoCentroid:
		// Src names a column pair stored as "<src>_lat"/"<src>_lon".
		latCol, lonCol := quoteIdent(m.Src+"_lat"), quoteIdent(m.Src+"_lon")
		cLat, cLon := dst+"__lat", dst+"__lon"
		return []string{
			fmt.Sprintf("AVG(%s) AS %s", latCol, cLat),
			fmt.Sprintf("AVG(%s) AS %s", lonCol, cLon),
		}, []string{cLat, cLon}
	default:
		return nil, nil
	}
}

// BuildValue assembles the final metric value(s) from the scanned row
// columns produced by selectExprs, keyed by dst for the rollup document's
// metric field(s). Multi-valued ops (stats, percentiles, geo_centroid)
// produce a nested map; single-valued ops produce a scalar.
func (m MetricSpec) BuildValue(dst string, row map[string]interface{}) interface{} {
	switch m.Op {
	case MetricSum, MetricAvg, MetricMin, MetricMax, MetricCardinality:
		_, cols := m.selectExprs(dst)
		return row[cols[0]]
	case MetricStats:
		_, cols := m.selectExprs(dst)
		return map[string]interface{}{
			"count": row[cols[0]],
			"min":   row[cols[1]],
			"max":   row[cols[2]],
			"avg":   row[cols[3]],
			"sum":   row[cols[4]],
		}
	case MetricExtendedStats:
		_, cols := m.selectExprs(dst)
		return map[string]interface{}{
			"count":         row[cols[0]],
			"min":           row[cols[1]],
			"max":           row[cols[2]],
			"avg":           row[cols[3]],
			"sum":           row[cols[4]],
			"std_deviation": row[cols[5]],
			"variance":      row[cols[6]],
		}
	case MetricPercentiles:
		_, cols := m.selectExprs(dst)
		pcts := m.Percentiles
		if len(pcts) == 0 {
			pcts = DefaultPercentiles
		}
		values, _ := row[cols[0]].([]interface{})
		out := make(map[string]interface{}, len(pcts))
		for i, p := range pcts {
			key := fmt.Sprintf("%g", p)
			if i < len(values) {
				out[key] = values[i]
			}
		}
		return out
	case MetricGeoCentroid:
		_, cols := m.selectExprs(dst)
		return map[string]interface{}{"lat": row[cols[0]], "lon": row[cols[1]]}
	default:
		return nil
	}
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
