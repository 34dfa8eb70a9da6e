// Package aggregate combines per-source values into one metric value.
//
// Combine handles numeric values (count-like scales) with the sum, min and
// max addition operators. CombineVersions handles version numbers, which can
// be compared with semantic-version ordering but never summed.
//
// A nil value on any source makes the combined value nil: a metric value is
// only reported when every source produced one. Values that cannot be
// combined (non-numeric input, summed versions) yield a *CalculationError.
package aggregate
