// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package aggregator

// CopyFieldFunc computes a copied field's value from the bucket's
// representative event (the latest-by-timestamp row in the window) and the
// partially-built rollup document so far.
type CopyFieldFunc func(representative map[string]interface{}, rollup map[string]interface{}) interface{}

// CopyFieldSpec is either a plain source-column name (copy representative[Src]
// verbatim) or a Func for derived values (§4.4: "copy-field spec {dst → src
// | callable(event, agg) → value}").
type CopyFieldSpec struct {
	Src  string
	Func CopyFieldFunc
}

// Resolve computes the copied value for this spec.
func (c CopyFieldSpec) Resolve(representative, rollup map[string]interface{}) interface{} {
	if c.Func != nil {
		return c.Func(representative, rollup)
	}
	return representative[c.Src]
}
