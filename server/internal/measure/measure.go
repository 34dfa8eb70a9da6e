package measure

import (
	"errors"
	"math"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/aggregate"
	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
)

// Compute returns the scale measurements of metric for the given sources.
// prev is the latest stored measurement of the metric, or nil.
func Compute(metric *catalog.Metric, sources []types.SourceMeasurement, prev *types.Measurement, now time.Time) map[types.Scale]types.ScaleMeasurement {
	out := make(map[types.Scale]types.ScaleMeasurement, len(metric.Scales))
	for _, scale := range metric.Scales {
		sm := types.ScaleMeasurement{
			Direction:  metric.Direction,
			Target:     metric.Target,
			NearTarget: metric.NearTarget,
		}
		if metric.DebtTarget != nil {
			sm.DebtTarget = *metric.DebtTarget
		}

		value, err := scaleValue(metric, scale, sources, now)
		if err != nil {
			var calc *aggregate.CalculationError
			if !errors.As(err, &calc) {
				calc = &aggregate.CalculationError{Reason: err.Error()}
			}
			sm.CalculationError = calc.Error()
			value = nil
		}
		sm.Value = value
		sm.Status = Status(metric, scale, value, len(sources) > 0, now)
		sm.StatusStart = statusStart(prev, scale, sm.Status, now)
		out[scale] = sm
	}
	return out
}

// HasCalculationError reports whether any scale failed to combine.
func HasCalculationError(scales map[types.Scale]types.ScaleMeasurement) bool {
	for _, sm := range scales {
		if sm.CalculationError != "" {
			return true
		}
	}
	return false
}

func scaleValue(metric *catalog.Metric, scale types.Scale, sources []types.SourceMeasurement, now time.Time) (*string, error) {
	switch scale {
	case types.ScaleVersionNumber:
		values := make([]*string, len(sources))
		for i, s := range sources {
			values[i] = s.Value
		}
		return aggregate.CombineVersions(metric.Addition, values)
	case types.ScalePercentage:
		return percentage(metric.Addition, metric.Direction, sources, now)
	default:
		values := make([]*string, len(sources))
		for i, s := range sources {
			v, err := AdjustedValue(s, now)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return aggregate.Combine(metric.Addition, values)
	}
}

// percentage computes Σvalue/Σtotal for sum and the min or max of the
// per-source percentages otherwise. A zero total counts as 0% when fewer is
// better and 100% when more is better.
func percentage(addition types.Addition, direction types.Direction, sources []types.SourceMeasurement, now time.Time) (*string, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	values := make([]float64, 0, len(sources))
	totals := make([]float64, 0, len(sources))
	for _, s := range sources {
		v, err := AdjustedValue(s, now)
		if err != nil || v == nil || s.Total == nil {
			return nil, err
		}
		value, err := aggregate.Parse(*v)
		if err != nil {
			return nil, err
		}
		total, err := aggregate.Parse(*s.Total)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
		totals = append(totals, total)
	}

	var pct float64
	if addition == types.AdditionSum {
		value, _ := aggregate.Fold(types.AdditionSum, values)
		total, _ := aggregate.Fold(types.AdditionSum, totals)
		pct = ratio(value, total, direction)
	} else {
		pcts := make([]float64, len(values))
		for i := range values {
			pcts[i] = ratio(values[i], totals[i], direction)
		}
		var err error
		if pct, err = aggregate.Fold(addition, pcts); err != nil {
			return nil, err
		}
	}
	return types.Str(aggregate.Format(math.Round(pct))), nil
}

func ratio(value, total float64, direction types.Direction) float64 {
	if total == 0 {
		if direction == types.MoreIsBetter {
			return 100
		}
		return 0
	}
	return value / total * 100
}

// AdjustedValue returns the source value minus the number of present
// entities the user marked false positive, won't fix or fixed, as long as
// the marking has not passed its end date.
func AdjustedValue(s types.SourceMeasurement, now time.Time) (*string, error) {
	if s.Value == nil || len(s.EntityUserData) == 0 {
		return s.Value, nil
	}
	ignored := 0
	for _, e := range s.Entities {
		data, ok := s.EntityUserData[e.Key]
		if !ok || !ignores(data, now) {
			continue
		}
		ignored++
	}
	if ignored == 0 {
		return s.Value, nil
	}
	v, err := aggregate.Parse(*s.Value)
	if err != nil {
		return nil, err
	}
	return types.Str(aggregate.Format(math.Max(v-float64(ignored), 0))), nil
}

func ignores(data types.EntityUserData, now time.Time) bool {
	switch data.Status {
	case types.EntityFalsePositive, types.EntityWontFix, types.EntityFixed:
	default:
		return false
	}
	if data.StatusEndDate == "" {
		return true
	}
	end, err := time.Parse(time.DateOnly, data.StatusEndDate)
	if err != nil {
		return true
	}
	return now.Before(end.AddDate(0, 0, 1))
}

// statusStart carries the start of an unchanged status forward from prev and
// resets it to now when the status changed. It is nil without a previous
// measurement.
func statusStart(prev *types.Measurement, scale types.Scale, status types.Status, now time.Time) *time.Time {
	if prev == nil {
		return nil
	}
	old, ok := prev.Scales[scale]
	if ok && old.Status == status {
		if old.StatusStart != nil {
			start := *old.StatusStart
			return &start
		}
		start := prev.Start
		return &start
	}
	return &now
}
