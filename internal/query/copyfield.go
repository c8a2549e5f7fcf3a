// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

// CopyFieldFunc derives a projected bucket field from the bucket built so
// far and the representative rollup document behind it (§4.6: "a
// transformer invoked with (result_bucket, doc)").
type CopyFieldFunc func(bucket map[string]interface{}, doc map[string]interface{}) interface{}

// CopyFieldSpec is either a plain source-field name (copy doc[Src]
// verbatim) or a Func for derived projections.
type CopyFieldSpec struct {
	Src  string
	Func CopyFieldFunc
}

// Resolve computes the projected value for this spec.
func (c CopyFieldSpec) Resolve(bucket, doc map[string]interface{}) interface{} {
	if c.Func != nil {
		return c.Func(bucket, doc)
	}
	return doc[c.Src]
}
