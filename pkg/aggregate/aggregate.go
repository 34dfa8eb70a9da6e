package aggregate

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// CalculationError reports that source values could not be combined.
type CalculationError struct {
	Reason string
}

func (e *CalculationError) Error() string {
	return "calculation error: " + e.Reason
}

// Combine folds numeric source values with the addition operator.
// It returns nil without error when there are no values or any value is nil.
func Combine(addition types.Addition, values []*string) (*string, error) {
	nums, ok, err := parseAll(values)
	if err != nil || !ok {
		return nil, err
	}
	result, err := fold(addition, nums)
	if err != nil {
		return nil, err
	}
	return types.Str(Format(result)), nil
}

// CombineVersions folds version-number values. A single version passes through
// unchanged; min and max pick by semantic-version ordering; summing more than
// one version is a *CalculationError.
func CombineVersions(addition types.Addition, values []*string) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	versions := make([]*semver.Version, 0, len(values))
	for _, v := range values {
		if v == nil {
			return nil, nil
		}
		parsed, err := semver.NewVersion(*v)
		if err != nil {
			return nil, &CalculationError{Reason: fmt.Sprintf("%q is not a version number", *v)}
		}
		versions = append(versions, parsed)
	}
	if len(versions) == 1 {
		return types.Str(*values[0]), nil
	}

	best := 0
	switch addition {
	case types.AdditionMin:
		for i, v := range versions {
			if v.LessThan(versions[best]) {
				best = i
			}
		}
	case types.AdditionMax:
		for i, v := range versions {
			if v.GreaterThan(versions[best]) {
				best = i
			}
		}
	default:
		return nil, &CalculationError{Reason: fmt.Sprintf("cannot %s %d version numbers", addition, len(versions))}
	}
	return types.Str(*values[best]), nil
}

// Fold applies the addition operator to already-parsed numbers.
func Fold(addition types.Addition, nums []float64) (float64, error) {
	return fold(addition, nums)
}

// Parse converts a value string to a number.
func Parse(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &CalculationError{Reason: fmt.Sprintf("%q is not a number", v)}
	}
	return f, nil
}

// Format renders a number without a trailing ".0" for whole values.
func Format(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseAll parses every value. ok is false when values is empty or holds a nil.
func parseAll(values []*string) (nums []float64, ok bool, err error) {
	if len(values) == 0 {
		return nil, false, nil
	}
	nums = make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			return nil, false, nil
		}
		f, err := Parse(*v)
		if err != nil {
			return nil, false, err
		}
		nums = append(nums, f)
	}
	return nums, true, nil
}

func fold(addition types.Addition, nums []float64) (float64, error) {
	if !addition.Valid() {
		return 0, &CalculationError{Reason: fmt.Sprintf("unknown addition %q", addition)}
	}
	if len(nums) == 0 {
		return 0, &CalculationError{Reason: "no values to combine"}
	}
	result := nums[0]
	for _, n := range nums[1:] {
		switch addition {
		case types.AdditionSum:
			result += n
		case types.AdditionMin:
			result = math.Min(result, n)
		case types.AdditionMax:
			result = math.Max(result, n)
		}
	}
	return result, nil
}
