package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/config"
)

// Webhooks delivers status changes to webhook targets.
type Webhooks struct {
	targets []config.WebhookConfig
	client  *http.Client
}

// NewWebhooks returns a Notifier for the configured targets.
func NewWebhooks(targets []config.WebhookConfig) *Webhooks {
	return &Webhooks{
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusChanged implements Notifier.
func (w *Webhooks) StatusChanged(ctx context.Context, c StatusChange) {
	for _, wh := range w.targets {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = w.sendSlack(ctx, url, c)
		case "teams":
			err = w.sendTeams(ctx, url, c)
		case "http":
			err = w.sendHTTP(ctx, url, c)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"metric", c.MetricUUID,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"metric", c.MetricUUID,
				"status", c.New,
			)
		}
	}
}

func (w *Webhooks) sendSlack(ctx context.Context, url string, c StatusChange) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", statusLabel(c.New), message(c)),
	})
	return w.post(ctx, url, body)
}

func (w *Webhooks) sendTeams(ctx context.Context, url string, c StatusChange) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": statusColor(c.New),
		"summary":    name(c),
		"title":      fmt.Sprintf("Quality status: %s", name(c)),
		"text":       message(c),
	}
	body, _ := json.Marshal(payload)
	return w.post(ctx, url, body)
}

func (w *Webhooks) sendHTTP(ctx context.Context, url string, c StatusChange) error {
	body, _ := json.Marshal(map[string]interface{}{"status_change": c})
	return w.post(ctx, url, body)
}

func (w *Webhooks) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func name(c StatusChange) string {
	if c.MetricName != "" {
		return c.MetricName
	}
	return c.MetricUUID
}

func message(c StatusChange) string {
	value := "none"
	if c.Value != nil {
		value = *c.Value
	}
	return fmt.Sprintf("%s changed from %s to %s (%s value %s)",
		name(c), statusText(c.Old), statusText(c.New), c.Scale, value)
}

func statusText(s types.Status) string {
	if s == types.StatusNone {
		return "unknown"
	}
	return string(s)
}

func statusLabel(s types.Status) string {
	switch s {
	case types.StatusTargetNotMet:
		return "[RED]"
	case types.StatusNearTargetMet:
		return "[YELLOW]"
	case types.StatusDebtTargetMet:
		return "[GREY]"
	case types.StatusTargetMet:
		return "[GREEN]"
	default:
		return "[INFO]"
	}
}

func statusColor(s types.Status) string {
	switch s {
	case types.StatusTargetNotMet:
		return "FF4F6A"
	case types.StatusNearTargetMet:
		return "FFAB40"
	case types.StatusTargetMet:
		return "00C853"
	default:
		return "00D4FF"
	}
}
