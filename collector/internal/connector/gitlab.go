package connector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// gitlabPerPage is the page size requested from the GitLab REST API (its max).
const gitlabPerPage = 100

var gitlabBaseParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "private_token", Type: TypePassword},
}

var gitlabJobParams = append(append([]Parameter(nil), gitlabBaseParams...),
	Parameter{Name: "project", Type: TypeString, Mandatory: true},
	Parameter{Name: "failure_type", Type: TypeMultipleChoice, Default: "failed",
		Values: []string{"canceled", "failed", "skipped"}},
	Parameter{Name: "branches", Type: TypeMultipleChoice},
)

var gitlabMergeRequestParams = append(append([]Parameter(nil), gitlabBaseParams...),
	Parameter{Name: "project", Type: TypeString, Mandatory: true},
	Parameter{Name: "merge_request_state", Type: TypeMultipleChoice, Default: "opened",
		Values: []string{"opened", "locked", "merged", "closed"}},
)

var gitlabVersionParams = gitlabBaseParams

// gitlabAuth sends the private token in GitLab's PRIVATE-TOKEN header.
type gitlabAuth struct{}

func (gitlabAuth) Auth(p *Params) Auth {
	return Auth{Header: "PRIVATE-TOKEN", HeaderValue: p.String("private_token")}
}

// gitlabProjectAPI returns the API base URL of the configured project.
func gitlabProjectAPI(src *Source) string {
	return fmt.Sprintf("%s/api/v4/projects/%s", src.Params.String("url"),
		url.PathEscape(src.Params.String("project")))
}

// --- failed jobs ------------------------------------------------------------

type gitlabJob struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Ref       string `json:"ref"`
	WebURL    string `json:"web_url"`
	CreatedAt string `json:"created_at"`
}

type gitlabFailedJobs struct{ gitlabAuth }

func (c *gitlabFailedJobs) APIURL(src *Source) string {
	return fmt.Sprintf("%s/jobs?per_page=%d", gitlabProjectAPI(src), gitlabPerPage)
}

func (c *gitlabFailedJobs) LandingURL(src *Source) string {
	return fmt.Sprintf("%s/%s/-/jobs", src.Params.String("url"), src.Params.String("project"))
}

func (c *gitlabFailedJobs) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	return getLinked(ctx, src, c.APIURL(src), "application/json")
}

// Parse groups jobs by name and ref. The API lists jobs newest first, so the
// first job seen per group is the most recent run; the group counts as failed
// when that run's status is one of the selected failure types.
func (c *gitlabFailedJobs) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	branches := src.Params.List("branches")
	latest := map[string]gitlabJob{}
	var order []string
	for _, resp := range responses {
		var jobs []gitlabJob
		if err := decodeJSON(resp, &jobs); err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if len(branches) > 0 && !contains(branches, j.Ref) {
				continue
			}
			key := j.Name + ":" + j.Ref
			if _, seen := latest[key]; seen {
				continue
			}
			latest[key] = j
			order = append(order, key)
		}
	}

	var entities []types.Entity
	for _, key := range order {
		j := latest[key]
		if !src.Params.Has("failure_type", j.Status) {
			continue
		}
		entities = append(entities, types.NewEntity(entityKey(key), map[string]string{
			"name":         j.Name,
			"stage":        j.Stage,
			"branch":       j.Ref,
			"url":          j.WebURL,
			"build_status": j.Status,
			"build_date":   dateOnly(j.CreatedAt),
		}))
	}
	return &Parsed{Value: intStr(len(entities)), Total: intStr(len(order)), Entities: entities}, nil
}

// --- merge requests ---------------------------------------------------------

type gitlabMergeRequest struct {
	IID       int    `json:"iid"`
	Title     string `json:"title"`
	State     string `json:"state"`
	WebURL    string `json:"web_url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

type gitlabMergeRequests struct{ gitlabAuth }

func (c *gitlabMergeRequests) APIURL(src *Source) string {
	return fmt.Sprintf("%s/merge_requests?per_page=%d", gitlabProjectAPI(src), gitlabPerPage)
}

func (c *gitlabMergeRequests) LandingURL(src *Source) string {
	return fmt.Sprintf("%s/%s/-/merge_requests", src.Params.String("url"), src.Params.String("project"))
}

func (c *gitlabMergeRequests) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	return getLinked(ctx, src, c.APIURL(src), "application/json")
}

func (c *gitlabMergeRequests) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	var entities []types.Entity
	total := 0
	for _, resp := range responses {
		var mrs []gitlabMergeRequest
		if err := decodeJSON(resp, &mrs); err != nil {
			return nil, err
		}
		total += len(mrs)
		for _, mr := range mrs {
			if !src.Params.Has("merge_request_state", mr.State) {
				continue
			}
			entities = append(entities, types.NewEntity(fmt.Sprintf("%d", mr.IID), map[string]string{
				"title":   mr.Title,
				"state":   mr.State,
				"url":     mr.WebURL,
				"author":  mr.Author.Username,
				"created": dateOnly(mr.CreatedAt),
				"updated": dateOnly(mr.UpdatedAt),
			}))
		}
	}
	return &Parsed{Value: intStr(len(entities)), Total: intStr(total), Entities: entities}, nil
}

// --- source version ---------------------------------------------------------

type gitlabVersion struct{ gitlabAuth }

func (c *gitlabVersion) APIURL(src *Source) string {
	return src.Params.String("url") + "/api/v4/version"
}

func (c *gitlabVersion) LandingURL(src *Source) string {
	return src.Params.String("url") + "/help"
}

func (c *gitlabVersion) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), "application/json")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

func (c *gitlabVersion) Parse(_ context.Context, _ *Source, responses []*Response) (*Parsed, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := decodeJSON(responses[0], &v); err != nil {
		return nil, err
	}
	if v.Version == "" {
		return nil, fmt.Errorf("no version in response from %s", responses[0].URL)
	}
	return &Parsed{Value: &v.Version}, nil
}

// --- helpers ----------------------------------------------------------------

// entityKey makes a key safe for use as a map key in stored documents and in
// URLs: path separators and dots are replaced.
func entityKey(s string) string {
	return strings.NewReplacer("/", "-", ".", "_").Replace(s)
}

// dateOnly returns the YYYY-MM-DD prefix of an ISO-8601 timestamp.
func dateOnly(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
