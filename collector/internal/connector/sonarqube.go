package connector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// sonarPageSize is the maximum page size of /api/issues/search.
const sonarPageSize = 500

var sonarBaseParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "private_token", Type: TypePassword},
}

var sonarViolationParams = append(append([]Parameter(nil), sonarBaseParams...),
	Parameter{Name: "component", Type: TypeString, Mandatory: true},
	Parameter{Name: "branch", Type: TypeString, Default: "main"},
	Parameter{Name: "severities", Type: TypeMultipleChoice,
		Values: []string{"INFO", "MINOR", "MAJOR", "CRITICAL", "BLOCKER"}},
	Parameter{Name: "types", Type: TypeMultipleChoice, Default: "BUG,CODE_SMELL,VULNERABILITY",
		Values: []string{"BUG", "CODE_SMELL", "VULNERABILITY"}},
)

var sonarVersionParams = sonarBaseParams

// sonarAuth sends the token as the basic-auth username, as SonarQube expects.
type sonarAuth struct{}

func (sonarAuth) Auth(p *Params) Auth {
	return Auth{Username: p.String("private_token")}
}

// --- violations -------------------------------------------------------------

type sonarIssue struct {
	Key       string `json:"key"`
	Rule      string `json:"rule"`
	Severity  string `json:"severity"`
	Type      string `json:"type"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Line      int    `json:"line"`
}

type sonarIssuePage struct {
	Total  int          `json:"total"`
	Paging *struct {
		Total int `json:"total"`
	} `json:"paging"`
	Issues []sonarIssue `json:"issues"`
}

func (p sonarIssuePage) declaredTotal() int {
	if p.Paging != nil {
		return p.Paging.Total
	}
	return p.Total
}

type sonarViolations struct{ sonarAuth }

func (c *sonarViolations) APIURL(src *Source) string {
	q := url.Values{}
	q.Set("componentKeys", src.Params.String("component"))
	q.Set("branch", src.Params.String("branch"))
	q.Set("resolved", "false")
	q.Set("ps", fmt.Sprint(sonarPageSize))
	if s := src.Params.List("severities"); len(s) > 0 {
		q.Set("severities", strings.Join(s, ","))
	}
	if t := src.Params.List("types"); len(t) > 0 {
		q.Set("types", strings.Join(t, ","))
	}
	return src.Params.String("url") + "/api/issues/search?" + q.Encode()
}

func (c *sonarViolations) LandingURL(src *Source) string {
	q := url.Values{}
	q.Set("id", src.Params.String("component"))
	q.Set("branch", src.Params.String("branch"))
	q.Set("resolved", "false")
	return src.Params.String("url") + "/project/issues?" + q.Encode()
}

// Fetch first checks that the component exists, so a misspelled component
// is reported as an error instead of as zero violations. Issue pages are then
// requested until the declared total has been read.
func (c *sonarViolations) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	q := url.Values{}
	q.Set("component", src.Params.String("component"))
	q.Set("branch", src.Params.String("branch"))
	show := src.Params.String("url") + "/api/components/show?" + q.Encode()
	if _, err := get(ctx, src, show, "application/json"); err != nil {
		return nil, fmt.Errorf("component %q: %w", src.Params.String("component"), err)
	}

	base := c.APIURL(src)
	var out []*Response
	seen := 0
	for page := 1; page <= maxPages; page++ {
		resp, err := get(ctx, src, fmt.Sprintf("%s&p=%d", base, page), "application/json")
		if err != nil {
			return nil, err
		}
		out = append(out, resp)

		var p sonarIssuePage
		if err := decodeJSON(resp, &p); err != nil {
			// Let Parse report the malformed page.
			break
		}
		seen += len(p.Issues)
		if len(p.Issues) == 0 || seen >= p.declaredTotal() {
			break
		}
	}
	return out, nil
}

func (c *sonarViolations) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	var entities []types.Entity
	total := 0
	for i, resp := range responses {
		var p sonarIssuePage
		if err := decodeJSON(resp, &p); err != nil {
			return nil, err
		}
		if i == 0 {
			total = p.declaredTotal()
		}
		for _, issue := range p.Issues {
			entities = append(entities, types.NewEntity(issue.Key, map[string]string{
				"message":   issue.Message,
				"severity":  strings.ToLower(issue.Severity),
				"type":      strings.ToLower(issue.Type),
				"rule":      issue.Rule,
				"component": issue.Component,
				"line":      lineStr(issue.Line),
				"url":       c.issueURL(src, issue.Key),
			}))
		}
	}
	return &Parsed{Value: intStr(total), Entities: entities}, nil
}

func (c *sonarViolations) issueURL(src *Source, key string) string {
	q := url.Values{}
	q.Set("id", src.Params.String("component"))
	q.Set("branch", src.Params.String("branch"))
	q.Set("issues", key)
	q.Set("open", key)
	return src.Params.String("url") + "/project/issues?" + q.Encode()
}

func lineStr(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

// --- source version ---------------------------------------------------------

// sonarBuildRE matches SonarQube's four-part version (e.g. 9.9.0.65466).
var sonarBuildRE = regexp.MustCompile(`^(\d+\.\d+\.\d+)\.(\d+)$`)

type sonarVersion struct{ sonarAuth }

func (c *sonarVersion) APIURL(src *Source) string {
	return src.Params.String("url") + "/api/server/version"
}

func (c *sonarVersion) LandingURL(src *Source) string {
	return src.Params.String("url")
}

func (c *sonarVersion) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), "text/plain")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

// Parse returns the server version; a build number is moved into semver
// build metadata.
func (c *sonarVersion) Parse(_ context.Context, _ *Source, responses []*Response) (*Parsed, error) {
	v := strings.TrimSpace(string(responses[0].Body))
	if v == "" {
		return nil, fmt.Errorf("empty version in response from %s", responses[0].URL)
	}
	if m := sonarBuildRE.FindStringSubmatch(v); m != nil {
		v = m[1] + "+" + m[2]
	}
	return &Parsed{Value: &v}, nil
}
