package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/qualitypulse/qualitypulse/pkg/aggregate"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var promParams = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "username", Type: TypeString},
	{Name: "password", Type: TypePassword},
	{Name: "metric_name", Type: TypeString, Mandatory: true},
	{Name: "total_metric_name", Type: TypeString},
	// labels filters samples by "name=value" pairs; all must match.
	{Name: "labels", Type: TypeMultipleChoice},
}

// promSamples sums the samples of one metric family of a Prometheus text
// exposition (a Pushgateway or an exporter's /metrics page). Each matching
// non-zero sample is reported as an entity.
type promSamples struct{}

func (c *promSamples) APIURL(src *Source) string     { return src.Params.String("url") }
func (c *promSamples) LandingURL(src *Source) string { return src.Params.String("url") }

func (c *promSamples) Fetch(ctx context.Context, src *Source) ([]*Response, error) {
	resp, err := get(ctx, src, c.APIURL(src), string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return nil, err
	}
	return []*Response{resp}, nil
}

func (c *promSamples) Parse(_ context.Context, src *Source, responses []*Response) (*Parsed, error) {
	mfs, err := parseMetrics(bytes.NewReader(responses[0].Body))
	if err != nil {
		return nil, err
	}
	filter, err := labelFilter(src.Params.List("labels"))
	if err != nil {
		return nil, err
	}

	name := src.Params.String("metric_name")
	mf, ok := mfs[name]
	if !ok {
		return nil, fmt.Errorf("metric %q not found in %s", name, responses[0].URL)
	}
	value, entities := sumFamily(mf, filter)

	parsed := &Parsed{Value: floatStr(value), Entities: entities}
	if totalName := src.Params.String("total_metric_name"); totalName != "" {
		tf, ok := mfs[totalName]
		if !ok {
			return nil, fmt.Errorf("metric %q not found in %s", totalName, responses[0].URL)
		}
		total, _ := sumFamily(tf, filter)
		parsed.Total = floatStr(total)
	}
	return parsed, nil
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up the counter, gauge or untyped samples of mf whose labels
// match filter, and returns one entity per non-zero sample.
func sumFamily(mf *dto.MetricFamily, filter map[string]string) (float64, []types.Entity) {
	var total float64
	var entities []types.Entity
	for _, m := range mf.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if !matchLabels(labels, filter) {
			continue
		}
		var v float64
		switch {
		case m.Counter != nil:
			v = m.Counter.GetValue()
		case m.Gauge != nil:
			v = m.Gauge.GetValue()
		case m.Untyped != nil:
			v = m.Untyped.GetValue()
		default:
			continue
		}
		total += v
		if v != 0 {
			attrs := map[string]string{"value": aggregate.Format(v)}
			for k, lv := range labels {
				attrs[k] = lv
			}
			entities = append(entities, types.NewEntity(sampleKey(mf.GetName(), labels), attrs))
		}
	}
	return total, entities
}

func labelFilter(pairs []string) (map[string]string, error) {
	filter := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("label filter %q is not name=value", pair)
		}
		filter[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return filter, nil
}

func matchLabels(labels, filter map[string]string) bool {
	for k, v := range filter {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// sampleKey identifies a sample by family name and sorted label pairs.
func sampleKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(":" + k + "=" + labels[k])
	}
	return entityKey(b.String())
}

func floatStr(f float64) *string {
	s := aggregate.Format(f)
	return &s
}
