// Package measure turns the per-source values of a posted measurement into
// one ScaleMeasurement per scale the metric supports, and classifies each
// against the metric's targets.
//
// Values flow through unchanged on the count scale, are normalised against
// source totals on the percentage scale and are ordered as semantic versions
// on the version_number scale. Entities the user marked false positive,
// won't fix or fixed are subtracted from the source value before combining.
package measure
