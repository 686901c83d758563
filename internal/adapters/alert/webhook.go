// Package alert delivers staff alerts to an external paging webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/domain"
)

const defaultTimeout = 5 * time.Second

// Webhook implements ports.EventSink by POSTing staff alerts as JSON.
// Delivery runs on its own goroutine so a slow pager never stalls a turn;
// failures are logged, not retried (the paging system owns retry policy).
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the webhook sink.
type Option func(*Webhook)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Webhook) { w.client = client }
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger configures delivery logging.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) { w.logger = logger }
}

// NewWebhook creates the sink.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:     url,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Publish implements ports.EventSink. Only staff alerts are delivered.
func (w *Webhook) Publish(ctx context.Context, ev domain.Event) {
	if ev.Type != domain.EventStaffAlert {
		return
	}
	go w.deliver(ev)
}

func (w *Webhook) deliver(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	body, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error("failed to marshal staff alert", "session_id", ev.SessionID, "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("failed to build alert request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error("staff alert delivery failed", "session_id", ev.SessionID, "err", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		w.logger.Error("staff alert rejected", "session_id", ev.SessionID, "status", resp.StatusCode)
		return
	}
	w.logger.Info("staff alert delivered", "session_id", ev.SessionID, "reason", ev.Reason)
}
