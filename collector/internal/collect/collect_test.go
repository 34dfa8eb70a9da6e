package collect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qualitypulse/qualitypulse/collector/internal/connector"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

func newCollector(t *testing.T, timeout time.Duration) *Collector {
	t.Helper()
	reg, err := connector.Default()
	if err != nil {
		t.Fatalf("connector.Default() error = %v", err)
	}
	return New(reg, http.DefaultTransport, timeout)
}

// coverageServer serves a cobertura report and counts requests.
func coverageServer(t *testing.T, valid, covered string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write([]byte(`<coverage lines-valid="` + valid + `" lines-covered="` + covered + `"/>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func coverageMetric(sources map[string]types.CatalogSource) types.CatalogMetric {
	return types.CatalogMetric{
		MetricUUID: "m1",
		ReportUUID: "r1",
		Type:       "uncovered_lines",
		Addition:   types.AdditionSum,
		Sources:    sources,
	}
}

func TestCollect_AllSources(t *testing.T) {
	a := coverageServer(t, "70", "60", nil)
	b := coverageServer(t, "50", "30", nil)
	c := newCollector(t, 5*time.Second)

	post, err := c.Collect(context.Background(), coverageMetric(map[string]types.CatalogSource{
		"s2": {Type: "cobertura", Parameters: types.Parameters{"url": b.URL}},
		"s1": {Type: "cobertura", Parameters: types.Parameters{"url": a.URL}},
	}))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if post.MetricUUID != "m1" || post.ReportUUID != "r1" {
		t.Errorf("post ids = %q %q", post.MetricUUID, post.ReportUUID)
	}
	if post.HasError {
		t.Error("HasError = true, want false")
	}
	if len(post.Sources) != 2 || post.Sources[0].SourceUUID != "s1" || post.Sources[1].SourceUUID != "s2" {
		t.Fatalf("sources = %+v, want s1, s2 in order", post.Sources)
	}
	if v := post.Sources[0].Value; v == nil || *v != "10" {
		t.Errorf("s1 value = %v, want 10", v)
	}
	value, err := Combine(coverageMetric(nil), post.Sources)
	if err != nil || value == nil || *value != "30" {
		t.Errorf("Combine() = %v, %v; want 30", value, err)
	}
}

func TestCollect_MissingMandatoryParameterSkipsMetric(t *testing.T) {
	var hits atomic.Int32
	ok := coverageServer(t, "10", "5", &hits)
	c := newCollector(t, 5*time.Second)

	post, err := c.Collect(context.Background(), coverageMetric(map[string]types.CatalogSource{
		"good": {Type: "cobertura", Parameters: types.Parameters{"url": ok.URL}},
		"bad":  {Type: "cobertura", Parameters: types.Parameters{"url": ""}},
	}))
	var cfgErr *connector.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *connector.ConfigurationError", err)
	}
	if cfgErr.SourceUUID != "bad" || cfgErr.Parameter != "url" {
		t.Errorf("error = %+v", cfgErr)
	}
	if post != nil {
		t.Error("no measurement should be returned for a skipped metric")
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("outbound calls = %d, want 0", n)
	}
}

func TestCollect_UnknownSourceType(t *testing.T) {
	c := newCollector(t, time.Second)
	_, err := c.Collect(context.Background(), coverageMetric(map[string]types.CatalogSource{
		"s": {Type: "nosuchtool", Parameters: types.Parameters{}},
	}))
	var cfgErr *connector.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *connector.ConfigurationError", err)
	}
}

func TestCollect_SourceTimeoutDoesNotCancelSiblings(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer slow.Close()
	fast := coverageServer(t, "10", "4", nil)
	c := newCollector(t, 200*time.Millisecond)

	post, err := c.Collect(context.Background(), coverageMetric(map[string]types.CatalogSource{
		"fast": {Type: "cobertura", Parameters: types.Parameters{"url": fast.URL}},
		"slow": {Type: "cobertura", Parameters: types.Parameters{"url": slow.URL}},
	}))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !post.HasError {
		t.Error("HasError = false, want true")
	}
	f, _ := sourceByUUID(post, "fast")
	if f.Value == nil || *f.Value != "6" || f.ConnectionError != "" {
		t.Errorf("fast source = %+v, want value 6", f)
	}
	s, _ := sourceByUUID(post, "slow")
	if s.ConnectionError == "" || s.Value != nil {
		t.Errorf("slow source = %+v, want connection error", s)
	}
	if v, _ := Combine(coverageMetric(nil), post.Sources); v != nil {
		t.Errorf("combined value = %q, want nil when a source has no value", *v)
	}
}

func TestCollect_VersionSumIsCalculationError(t *testing.T) {
	version := func(v string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(v))
		}))
		t.Cleanup(srv.Close)
		return srv
	}
	a, b := version("9.9.0.1"), version("10.4.1")
	c := newCollector(t, 5*time.Second)
	metric := types.CatalogMetric{
		MetricUUID: "v",
		Type:       "source_version",
		Scale:      types.ScaleVersionNumber,
		Addition:   types.AdditionSum,
		Sources: map[string]types.CatalogSource{
			"a": {Type: "sonarqube", Parameters: types.Parameters{"url": a.URL}},
			"b": {Type: "sonarqube", Parameters: types.Parameters{"url": b.URL}},
		},
	}

	post, err := c.Collect(context.Background(), metric)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !post.HasError {
		t.Error("summing two versions should set HasError")
	}

	delete(metric.Sources, "b")
	post, err = c.Collect(context.Background(), metric)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if post.HasError {
		t.Error("a single version should not set HasError")
	}
	if v, err := Combine(metric, post.Sources); err != nil || v == nil || *v != "9.9.0+1" {
		t.Errorf("Combine() = %v, %v; want 9.9.0+1", v, err)
	}
}

func TestCollect_NoSources(t *testing.T) {
	c := newCollector(t, time.Second)
	post, err := c.Collect(context.Background(), coverageMetric(nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(post.Sources) != 0 || post.HasError {
		t.Errorf("post = %+v, want empty and error free", post)
	}
}

func sourceByUUID(p *types.MeasurementPost, uuid string) (types.SourceMeasurement, bool) {
	for _, s := range p.Sources {
		if s.SourceUUID == uuid {
			return s, true
		}
	}
	return types.SourceMeasurement{}, false
}
