package catalog

import (
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// MetricType describes the defaults of one metric type.
type MetricType struct {
	Scales     []types.Scale
	Direction  types.Direction
	Addition   types.Addition
	Target     string
	NearTarget string
}

// DefaultScale is the first supported scale.
func (mt MetricType) DefaultScale() types.Scale {
	return mt.Scales[0]
}

// supports reports whether scale is one of the metric type's scales.
func (mt MetricType) supports(scale types.Scale) bool {
	for _, s := range mt.Scales {
		if s == scale {
			return true
		}
	}
	return false
}

// DataModel maps metric types to their defaults.
var DataModel = map[string]MetricType{
	"violations": {
		Scales: []types.Scale{types.ScaleCount}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "10",
	},
	"failed_jobs": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "0",
	},
	"merge_requests": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "10",
	},
	"tests": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "0",
	},
	"uncovered_lines": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "10",
	},
	"uncovered_branches": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "10",
	},
	"slow_transactions": {
		Scales: []types.Scale{types.ScaleCount, types.ScalePercentage}, Direction: types.FewerIsBetter,
		Addition: types.AdditionSum, Target: "0", NearTarget: "5",
	},
	"source_version": {
		Scales: []types.Scale{types.ScaleVersionNumber}, Direction: types.MoreIsBetter,
		Addition: types.AdditionMin, Target: "1.0", NearTarget: "0.9",
	},
}
