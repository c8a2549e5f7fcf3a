// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"fmt"
	"sort"
	"time"
)

const dateParamLayout = "2006-01-02"

// reservedParams are accepted by every query shape and never count toward
// a query's required_filters set.
var reservedParams = map[string]bool{
	"interval":   true,
	"start_date": true,
	"end_date":   true,
}

// requiredFilters validates that params carries exactly the keys declared
// by required (§4.6: "validation fails ... if the provided parameter set
// does not exactly match required_filters"), returning the filter values.
func requiredFilters(required []string, params map[string]interface{}) (map[string]interface{}, error) {
	provided := make([]string, 0, len(params))
	for k := range params {
		if !reservedParams[k] {
			provided = append(provided, k)
		}
	}
	sort.Strings(provided)

	want := append([]string(nil), required...)
	sort.Strings(want)

	if len(provided) != len(want) {
		return nil, fmt.Errorf("%w: expected filters %v, got %v", ErrInvalidInput, want, provided)
	}
	for i := range want {
		if want[i] != provided[i] {
			return nil, fmt.Errorf("%w: expected filters %v, got %v", ErrInvalidInput, want, provided)
		}
	}

	out := make(map[string]interface{}, len(required))
	for _, k := range required {
		out[k] = params[k]
	}
	return out, nil
}

// dateRange parses the optional start_date/end_date params, both inclusive
// lower / exclusive upper bounds on the query window.
func dateRange(params map[string]interface{}) (start, end *time.Time, err error) {
	if v, ok := params["start_date"]; ok {
		t, perr := parseDateParam(v)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: start_date: %v", ErrInvalidInput, perr)
		}
		start = &t
	}
	if v, ok := params["end_date"]; ok {
		t, perr := parseDateParam(v)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: end_date: %v", ErrInvalidInput, perr)
		}
		end = &t
	}
	return start, end, nil
}

func parseDateParam(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		t, err := time.Parse(dateParamLayout, x)
		if err != nil {
			t, err = time.Parse(time.RFC3339, x)
		}
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date value type %T", v)
	}
}
