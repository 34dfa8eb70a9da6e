package connector

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var ptrBaseParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "username", Type: TypeString},
	{Name: "password", Type: TypePassword},
}

var ptrSlowParams = append(append([]Parameter(nil), ptrBaseParams...),
	Parameter{Name: "thresholds", Type: TypeMultipleChoice, Default: "high,warning",
		Values: []string{"high", "warning"}},
	Parameter{Name: "transactions_to_ignore", Type: TypeMultipleChoice},
)

var ptrTestParams = append(append([]Parameter(nil), ptrBaseParams...),
	Parameter{Name: "test_result", Type: TypeMultipleChoice, Default: "failed,success",
		Values: []string{"failed", "success"}},
)

// ptrReport is the shared fetch of the HTML report.
type ptrReport struct{}

func (ptrReport) APIURL(src *Source) string     { return src.Params.String("url") }
func (ptrReport) LandingURL(src *Source) string { return src.Params.String("url") }

func (r ptrReport) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, r.APIURL(src), "text/html")
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

func ptrDocument(resp *Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML from %s: %w", resp.URL, err)
	}
	return doc, nil
}

// --- slow transactions ------------------------------------------------------

type ptrSlowTransactions struct{ ptrReport }

// Parse counts the transactions of the details table whose evaluation class
// marks them as exceeding one of the selected thresholds.
func (c *ptrSlowTransactions) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	doc, err := ptrDocument(responses[0])
	if err != nil {
		return nil, err
	}
	rows := doc.Find("table.details tr.transaction")
	if rows.Length() == 0 && doc.Find("table.details").Length() == 0 {
		return nil, fmt.Errorf("no details table in %s", responses[0].URL)
	}
	ignore := src.Params.List("transactions_to_ignore")

	var entities []types.Entity
	rows.Each(func(_ int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("td.name").First().Text())
		if name == "" || contains(ignore, name) {
			return
		}
		threshold := ""
		switch {
		case row.Find("td.red_evaluation").Length() > 0:
			threshold = "high"
		case row.Find("td.yellow_evaluation").Length() > 0:
			threshold = "warning"
		}
		if threshold == "" || !src.Params.Has("thresholds", threshold) {
			return
		}
		entities = append(entities, types.NewEntity(entityKey(name), map[string]string{
			"name":      name,
			"threshold": threshold,
		}))
	})
	return &Parsed{Value: intStr(len(entities)), Total: intStr(rows.Length()), Entities: entities}, nil
}

// --- tests ------------------------------------------------------------------

type ptrTests struct{ ptrReport }

func (c *ptrTests) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	doc, err := ptrDocument(responses[0])
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for result, id := range map[string]string{"success": "td#succeeded", "failed": "td#failed"} {
		cell := doc.Find(id).First()
		if cell.Length() == 0 {
			return nil, fmt.Errorf("no %s cell in %s", id, responses[0].URL)
		}
		n, err := parseIntText(cell.Text())
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", id, responses[0].URL, err)
		}
		counts[result] = n
	}
	value := 0
	for _, result := range src.Params.List("test_result") {
		value += counts[result]
	}
	return &Parsed{Value: intStr(value), Total: intStr(counts["success"] + counts["failed"])}, nil
}

func parseIntText(s string) (int, error) {
	var n int
	if _, err := fmt.Sscan(strings.TrimSpace(s), &n); err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}
