package measure

import (
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/qualitypulse/qualitypulse/pkg/aggregate"
	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
)

// Status classifies value on scale against the metric's targets.
//
// A missing value is only ever debt_target_met, and only for a metric without
// sources whose debt is accepted and not expired. Expired debt falls through
// to the near target and target evaluation.
func Status(metric *catalog.Metric, scale types.Scale, value *string, hasSources bool, now time.Time) types.Status {
	debtAccepted := metric.AcceptDebt && !metric.DebtExpired(now)
	if value == nil {
		if !hasSources && debtAccepted {
			return types.StatusDebtTargetMet
		}
		return types.StatusNone
	}
	if !metric.EvaluateTargets {
		return types.StatusInformative
	}

	within := func(target string) (bool, error) {
		return betterOrEqual(scale, metric.Direction, *value, target)
	}

	met, err := within(metric.Target)
	if err != nil {
		return types.StatusNone
	}
	if met {
		return types.StatusTargetMet
	}
	if debtAccepted && metric.DebtTarget != nil {
		if ok, err := within(*metric.DebtTarget); err == nil && ok {
			return types.StatusDebtTargetMet
		}
	}
	if ok, err := within(metric.NearTarget); err == nil && ok {
		return types.StatusNearTargetMet
	}
	return types.StatusTargetNotMet
}

// betterOrEqual reports whether value is at least as good as target.
func betterOrEqual(scale types.Scale, direction types.Direction, value, target string) (bool, error) {
	var cmp int
	if scale == types.ScaleVersionNumber {
		v, err := semver.NewVersion(value)
		if err != nil {
			return false, err
		}
		t, err := semver.NewVersion(target)
		if err != nil {
			return false, err
		}
		cmp = v.Compare(t)
	} else {
		v, err := aggregate.Parse(value)
		if err != nil {
			return false, err
		}
		t, err := aggregate.Parse(target)
		if err != nil {
			return false, err
		}
		switch {
		case v < t:
			cmp = -1
		case v > t:
			cmp = 1
		}
	}
	if direction == types.MoreIsBetter {
		return cmp >= 0, nil
	}
	return cmp <= 0, nil
}
