package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qualitypulse/qualitypulse/collector/internal/connector"
	"github.com/qualitypulse/qualitypulse/pkg/aggregate"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// Collector collects metrics using the connectors of a registry.
// It is safe for concurrent use.
type Collector struct {
	registry  *connector.Registry
	transport http.RoundTripper
	timeout   atomic.Int64 // per-source timeout in nanoseconds
}

// New returns a Collector. All source clients share transport.
func New(registry *connector.Registry, transport http.RoundTripper, sourceTimeout time.Duration) *Collector {
	c := &Collector{registry: registry, transport: transport}
	c.SetSourceTimeout(sourceTimeout)
	return c
}

// SetSourceTimeout changes the timeout applied to each source fetch started
// from now on.
func (c *Collector) SetSourceTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
}

func (c *Collector) sourceTimeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// job is one source ready to be collected.
type job struct {
	conn connector.Connector
	src  *connector.Source
}

// prepare resolves and validates every source of metric. It makes no network
// calls. The first configuration problem found is returned.
func (c *Collector) prepare(metric types.CatalogMetric) ([]job, error) {
	if len(metric.Sources) == 0 {
		return nil, nil
	}
	jobs := make([]job, 0, len(metric.Sources))
	for _, uuid := range metric.SourceUUIDs() {
		cs := metric.Sources[uuid]
		spec, ok := c.registry.Lookup(cs.Type, metric.Type)
		if !ok {
			return nil, &connector.ConfigurationError{
				SourceUUID: uuid,
				Reason:     fmt.Sprintf("no connector for source type %q and metric type %q", cs.Type, metric.Type),
			}
		}
		params, err := connector.NewParams(uuid, spec.Parameters, cs.Parameters)
		if err != nil {
			return nil, err
		}
		conn := spec.New()
		jobs = append(jobs, job{
			conn: conn,
			src: &connector.Source{
				UUID:       uuid,
				Type:       cs.Type,
				MetricType: metric.Type,
				Params:     params,
				Client:     connector.NewHTTPClient(c.transport, connector.AuthFor(conn, params), c.sourceTimeout()),
			},
		})
	}
	return jobs, nil
}

// Collect collects metric and returns the measurement to post.
// A *connector.ConfigurationError means the metric was skipped.
func (c *Collector) Collect(ctx context.Context, metric types.CatalogMetric) (*types.MeasurementPost, error) {
	jobs, err := c.prepare(metric)
	if err != nil {
		return nil, err
	}

	post := &types.MeasurementPost{
		MetricUUID: metric.MetricUUID,
		ReportUUID: metric.ReportUUID,
		Sources:    make([]types.SourceMeasurement, len(jobs)),
	}

	timeout := c.sourceTimeout()
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			post.Sources[i] = connector.Collect(sctx, j.conn, j.src)
		}(i, j)
	}
	wg.Wait()

	for _, sm := range post.Sources {
		if sm.HasError() {
			post.HasError = true
		}
	}

	value, err := Combine(metric, post.Sources)
	var calcErr *aggregate.CalculationError
	switch {
	case errors.As(err, &calcErr):
		post.HasError = true
		slog.Warn("collect: cannot combine source values",
			"metric", metric.MetricUUID, "err", err)
	case err != nil:
		return nil, fmt.Errorf("collect: metric %s: %w", metric.MetricUUID, err)
	default:
		slog.Debug("collect: metric collected",
			"metric", metric.MetricUUID,
			"sources", len(post.Sources),
			"value", deref(value),
			"has_error", post.HasError)
	}
	return post, nil
}

// Combine folds the source values of a collected metric with its addition
// operator. Version-number metrics are combined by version ordering.
func Combine(metric types.CatalogMetric, sources []types.SourceMeasurement) (*string, error) {
	values := make([]*string, len(sources))
	for i, sm := range sources {
		values[i] = sm.Value
	}
	addition := metric.Addition
	if addition == "" {
		addition = types.AdditionSum
	}
	if metric.Scale == types.ScaleVersionNumber {
		return aggregate.CombineVersions(addition, values)
	}
	return aggregate.Combine(addition, values)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
