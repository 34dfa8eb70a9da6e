package connector

import (
	"context"
	"encoding/xml"
	"fmt"
)

var coberturaParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "username", Type: TypeString},
	{Name: "password", Type: TypePassword},
}

type coberturaReport struct {
	XMLName         xml.Name `xml:"coverage"`
	LinesValid      int      `xml:"lines-valid,attr"`
	LinesCovered    int      `xml:"lines-covered,attr"`
	BranchesValid   int      `xml:"branches-valid,attr"`
	BranchesCovered int      `xml:"branches-covered,attr"`
}

// coberturaCoverage reports uncovered lines, or uncovered branches when
// branches is set. Value is the uncovered count, total the valid count.
type coberturaCoverage struct {
	branches bool
}

func (c *coberturaCoverage) APIURL(src *Source) string     { return src.Params.String("url") }
func (c *coberturaCoverage) LandingURL(src *Source) string { return src.Params.String("url") }

func (c *coberturaCoverage) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), "application/xml")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

func (c *coberturaCoverage) Parse(_ context.Context, _ *Source, responses []*Response) (*Parsed, error) {
	var r coberturaReport
	if err := xml.Unmarshal(responses[0].Body, &r); err != nil {
		return nil, fmt.Errorf("decode XML from %s: %w", responses[0].URL, err)
	}
	valid, covered := r.LinesValid, r.LinesCovered
	if c.branches {
		valid, covered = r.BranchesValid, r.BranchesCovered
	}
	if covered > valid {
		return nil, fmt.Errorf("covered (%d) exceeds valid (%d) in %s", covered, valid, responses[0].URL)
	}
	return &Parsed{Value: intStr(valid - covered), Total: intStr(valid)}, nil
}
