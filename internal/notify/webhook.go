package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// WebhookDeliverer posts events as JSON to a configured endpoint. Non-2xx
// responses count as delivery failures; the engine never retries a failed
// event (the next qualifying change produces a fresh one).
type WebhookDeliverer struct {
	url        string
	httpClient *http.Client
}

// NewWebhookDeliverer creates a WebhookDeliverer for the given URL.
func NewWebhookDeliverer(url string) *WebhookDeliverer {
	return &WebhookDeliverer{
		url: url,
		httpClient: &http.Client{
			Timeout: 0, // per-call deadline comes from the context
		},
	}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, ev Event) Result {
	body, err := json.Marshal(ev)
	if err != nil {
		return Result{Err: fmt.Errorf("encoding event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("posting event: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	}
	return Result{Delivered: true}
}

// LogDeliverer writes events to the structured log. Used when no webhook is
// configured, so a bare deployment still surfaces its decisions somewhere.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a LogDeliverer on the default logger.
func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{logger: slog.Default()}
}

func (d *LogDeliverer) Deliver(_ context.Context, ev Event) Result {
	d.logger.Info("notification",
		"search_id", ev.SearchID,
		"candidate", ev.CandidateKey,
		"reason", ev.Reason,
		"score", ev.Score,
		"text", ev.Text,
	)
	return Result{Delivered: true}
}
