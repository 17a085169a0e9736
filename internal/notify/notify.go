// Package notify tells the operator that a batch finished.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Event describes a finished run.
type Event struct {
	RunID      string `json:"run_id"`
	Corpus     string `json:"corpus"`
	Status     string `json:"status"`
	Output     string `json:"output"`
	Counted    int    `json:"counted"`
	Skipped    int    `json:"skipped"`
	Errored    int    `json:"errored"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Notify(_ context.Context, _ Event) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}

const (
	DefaultWebhookTimeout = 10 * time.Second
	DefaultWebhookRetries = 3
)

type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retries int
	// Backoff is the delay before the first retry, doubled on each retry.
	Backoff time.Duration
}

// Webhook POSTs the completion event as JSON.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook_url is empty")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("webhook retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Webhook{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// DeliveryError reports a completion event the webhook did not accept.
// StatusCode is zero when no response was received.
type DeliveryError struct {
	RunID      string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("completion webhook for run %s: gave up after %d attempt(s)", e.RunID, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", last status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// RunIDHeader carries the run ID so receivers can drop duplicate deliveries.
const RunIDHeader = "X-Corpusq-Run-Id"

// Notify delivers ev. Transport errors, 429 and 5xx are retried with a
// doubling delay; any other status ends delivery at once.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode completion event: %w", err)
	}

	derr := &DeliveryError{RunID: ev.RunID}
	delay := w.cfg.Backoff
	for derr.Attempts <= w.cfg.Retries {
		if derr.Attempts > 0 {
			if err := wait(ctx, delay); err != nil {
				derr.Err = err
				return derr
			}
			delay *= 2
		}
		derr.Attempts++

		status, err := w.post(ctx, ev.RunID, body)
		derr.StatusCode, derr.Err = status, err
		if err == nil && status/100 == 2 {
			return nil
		}
		if err == nil && !retryableStatus(status) {
			return derr
		}
	}
	return derr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post sends one delivery and returns the response status.
func (w *Webhook) post(ctx context.Context, runID string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RunIDHeader, runID)
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
