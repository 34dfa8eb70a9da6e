package connector

import (
	"context"
)

// NumericMetricTypes lists the metric types a manual number can stand in for.
var NumericMetricTypes = []string{
	"failed_jobs",
	"merge_requests",
	"slow_transactions",
	"tests",
	"uncovered_branches",
	"uncovered_lines",
	"violations",
}

var manualNumberParams = []Parameter{
	{Name: "number", Type: TypeInteger, Mandatory: true, Default: "0"},
}

// manualNumber returns the configured number without any network call.
type manualNumber struct{}

func (manualNumber) APIURL(*Source) string     { return "" }
func (manualNumber) LandingURL(*Source) string { return "" }

func (manualNumber) Fetch(context.Context, *Source) ([]*Response, error) {
	return nil, nil
}

func (manualNumber) Parse(_ context.Context, src *Source, _ []*Response) (*Parsed, error) {
	n := src.Params.String("number")
	return &Parsed{Value: &n}, nil
}
