package connector

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var junitParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "username", Type: TypeString},
	{Name: "password", Type: TypePassword},
	{Name: "test_result", Type: TypeMultipleChoice, Default: "errored,failed",
		Values: []string{"errored", "failed", "passed", "skipped"}},
}

type junitCase struct {
	Name      string    `xml:"name,attr"`
	ClassName string    `xml:"classname,attr"`
	Failure   *struct{} `xml:"failure"`
	Error     *struct{} `xml:"error"`
	Skipped   *struct{} `xml:"skipped"`
}

func (c junitCase) result() string {
	switch {
	case c.Failure != nil:
		return "failed"
	case c.Error != nil:
		return "errored"
	case c.Skipped != nil:
		return "skipped"
	}
	return "passed"
}

type junitSuite struct {
	Name   string       `xml:"name,attr"`
	Cases  []junitCase  `xml:"testcase"`
	Suites []junitSuite `xml:"testsuite"`
}

type junitTests struct{}

func (c *junitTests) APIURL(src *Source) string     { return src.Params.String("url") }
func (c *junitTests) LandingURL(src *Source) string { return src.Params.String("url") }

func (c *junitTests) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), "application/xml")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

// Parse accepts both a <testsuites> root and a single <testsuite> root.
// Value is the number of test cases whose result is selected by test_result;
// total is the number of test cases.
func (c *junitTests) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	var root junitSuite
	if err := xml.Unmarshal(responses[0].Body, &root); err != nil {
		return nil, fmt.Errorf("decode XML from %s: %w", responses[0].URL, err)
	}

	var entities []types.Entity
	total := 0
	var walk func(s junitSuite)
	walk = func(s junitSuite) {
		for _, tc := range s.Cases {
			total++
			result := tc.result()
			if !src.Params.Has("test_result", result) {
				continue
			}
			entities = append(entities, types.NewEntity(entityKey(tc.ClassName+":"+tc.Name), map[string]string{
				"name":        tc.Name,
				"class_name":  tc.ClassName,
				"suite_name":  s.Name,
				"test_result": result,
			}))
		}
		for _, child := range s.Suites {
			walk(child)
		}
	}
	walk(root)
	return &Parsed{Value: intStr(len(entities)), Total: intStr(total), Entities: entities}, nil
}
