package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var jenkinsParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "username", Type: TypeString},
	{Name: "password", Type: TypePassword},
	{Name: "failure_type", Type: TypeMultipleChoice, Default: "Failure",
		Values: []string{"Aborted", "Failure", "Not built", "Unstable"}},
	{Name: "jobs_to_include", Type: TypeMultipleChoice},
}

// jenkinsJobTree requests nested folders three levels deep.
const jenkinsJobTree = "jobs[buildable,color,url,name,fullName,lastBuild[result,timestamp]," +
	"jobs[buildable,color,url,name,fullName,lastBuild[result,timestamp]," +
	"jobs[buildable,color,url,name,fullName,lastBuild[result,timestamp]]]]"

type jenkinsJob struct {
	Name      string       `json:"name"`
	FullName  string       `json:"fullName"`
	URL       string       `json:"url"`
	Buildable bool         `json:"buildable"`
	Color     string       `json:"color"`
	Jobs      []jenkinsJob `json:"jobs"`
	LastBuild *struct {
		Result    string `json:"result"`
		Timestamp int64  `json:"timestamp"`
	} `json:"lastBuild"`
}

// result maps the Jenkins build result to the labels used by failure_type.
func (j jenkinsJob) result() string {
	if j.LastBuild == nil || j.LastBuild.Result == "" {
		return "Not built"
	}
	r := strings.ReplaceAll(strings.ToLower(j.LastBuild.Result), "_", " ")
	return strings.ToUpper(r[:1]) + r[1:]
}

type jenkinsFailedJobs struct{}

func (c *jenkinsFailedJobs) APIURL(src *Source) string {
	return src.Params.String("url") + "/api/json?tree=" + jenkinsJobTree
}

func (c *jenkinsFailedJobs) LandingURL(src *Source) string {
	return src.Params.String("url")
}

func (c *jenkinsFailedJobs) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), "application/json")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

func (c *jenkinsFailedJobs) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	var root struct {
		Jobs *[]jenkinsJob `json:"jobs"`
	}
	if err := decodeJSON(responses[0], &root); err != nil {
		return nil, err
	}
	if root.Jobs == nil {
		return nil, fmt.Errorf("no jobs in response from %s", responses[0].URL)
	}
	include := src.Params.List("jobs_to_include")

	var entities []types.Entity
	total := 0
	var walk func(jobs []jenkinsJob)
	walk = func(jobs []jenkinsJob) {
		for _, j := range jobs {
			if len(j.Jobs) > 0 {
				walk(j.Jobs)
			}
			if !j.Buildable {
				continue
			}
			name := j.FullName
			if name == "" {
				name = j.Name
			}
			if len(include) > 0 && !contains(include, name) {
				continue
			}
			total++
			result := j.result()
			if !src.Params.Has("failure_type", result) {
				continue
			}
			attrs := map[string]string{
				"name":         name,
				"url":          j.URL,
				"build_status": result,
			}
			if j.LastBuild != nil && j.LastBuild.Timestamp > 0 {
				attrs["build_date"] = time.UnixMilli(j.LastBuild.Timestamp).UTC().Format(time.DateOnly)
			}
			entities = append(entities, types.NewEntity(entityKey(name), attrs))
		}
	}
	walk(*root.Jobs)
	return &Parsed{Value: intStr(len(entities)), Total: intStr(total), Entities: entities}, nil
}
