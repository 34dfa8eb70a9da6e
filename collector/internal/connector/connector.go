package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// Source is one configured source of a metric, bound to its connector's
// parameter schema and an authenticated HTTP client.
type Source struct {
	UUID       string
	Type       string
	MetricType string
	Params     *Params
	Client     *http.Client
}

// Response is one raw HTTP response fetched by a connector.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Parsed is what a connector extracts from its responses.
type Parsed struct {
	Value    *string
	Total    *string
	Entities []types.Entity
}

// Connector fetches and parses the data of one source type for one metric type.
// Fetch may issue several requests (pagination, existence checks) but returns
// them as one logical fetch.
type Connector interface {
	APIURL(src *Source) string
	LandingURL(src *Source) string
	Fetch(ctx context.Context, src *Source) ([]*Response, error)
	Parse(ctx context.Context, src *Source, responses []*Response) (*Parsed, error)
}

// ConfigurationError reports a source that cannot be collected because of its
// configuration (missing mandatory parameter, unknown connector). No network
// call is made for the metric.
type ConfigurationError struct {
	SourceUUID string
	Parameter  string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("source %s: parameter %q: %s", e.SourceUUID, e.Parameter, e.Reason)
	}
	return fmt.Sprintf("source %s: %s", e.SourceUUID, e.Reason)
}

// ConnectionError reports a failure to reach the source: network, auth,
// timeout or an HTTP error status.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "connection error: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError reports a response that was retrieved but could not be
// interpreted.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Collect runs c for src and returns the resulting source measurement.
// Connection and parse failures null the value and total and are recorded as
// strings; they never propagate to the caller.
func Collect(ctx context.Context, c Connector, src *Source) types.SourceMeasurement {
	sm := types.SourceMeasurement{
		SourceUUID: src.UUID,
		APIURL:     c.APIURL(src),
		LandingURL: c.LandingURL(src),
	}

	responses, err := c.Fetch(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		cerr := &ConnectionError{Err: err}
		sm.ConnectionError = cerr.Error()
		slog.Warn("connector: fetch failed",
			"source", src.UUID, "type", src.Type, "metric_type", src.MetricType, "err", err)
		return sm
	}

	parsed, err := c.Parse(ctx, src, responses)
	if err != nil {
		perr := &ParseError{Err: err}
		sm.ParseError = perr.Error()
		slog.Warn("connector: parse failed",
			"source", src.UUID, "type", src.Type, "metric_type", src.MetricType, "err", err)
		return sm
	}

	sm.Value = parsed.Value
	sm.Total = parsed.Total
	sm.Entities = uniqueEntities(src.UUID, parsed.Entities)
	return sm
}

// uniqueEntities drops entities whose key was already seen; keys must be unique
// within one source measurement.
func uniqueEntities(sourceUUID string, entities []types.Entity) []types.Entity {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(entities))
	out := entities[:0:0]
	for _, e := range entities {
		if _, dup := seen[e.Key]; dup {
			slog.Debug("connector: dropping duplicate entity", "source", sourceUUID, "key", e.Key)
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	return out
}
