package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/qualitypulse/qualitypulse/collector/internal/config"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

const (
	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Permanent reports whether retrying the request is pointless.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 &&
		e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests
}

// Client talks to the server API.
type Client struct {
	baseURL string
	http    *http.Client
	header  string
	key     string
}

// New creates a Client from the collector config.
func New(cfg config.CollectorConfig) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.ServerURL(), "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
	if cfg.ServerAuth.Mode == "apikey" {
		c.header = cfg.ServerAuth.EffectiveHeader()
		c.key = cfg.ServerAuth.Key()
		if c.key == "" {
			slog.Warn("shipper: apikey auth configured but key is empty", "key_env", cfg.ServerAuth.KeyEnv)
		}
	}
	return c
}

// Metrics fetches the metric catalog.
func (c *Client) Metrics(ctx context.Context) ([]types.CatalogMetric, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/metrics", nil)
	if err != nil {
		return nil, err
	}
	var byUUID map[string]types.CatalogMetric
	if err := json.Unmarshal(body, &byUUID); err != nil {
		return nil, fmt.Errorf("shipper: decode catalog: %w", err)
	}
	out := make([]types.CatalogMetric, 0, len(byUUID))
	for uuid, m := range byUUID {
		if m.MetricUUID == "" {
			m.MetricUUID = uuid
		}
		out = append(out, m)
	}
	return out, nil
}

// Post sends one measurement to the server.
func (c *Client) Post(ctx context.Context, post *types.MeasurementPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("shipper: encode measurement: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/measurements", data); err != nil {
		return err
	}
	slog.Debug("shipper: measurement delivered", "metric", post.MetricUUID)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("shipper: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.header != "" && c.key != "" {
		req.Header.Set(c.header, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shipper: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("shipper: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: msg}
	}
	return data, nil
}
