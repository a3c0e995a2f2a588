package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ridesim/internal/model"
)

// Webhook POSTs events as JSON, signed with X-Signature when a secret is set.
type Webhook struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	// Backoff returns the wait before the given retry; nil uses nextBackoff.
	Backoff func(attempts int) time.Duration
}

func NewWebhook(url, secret string, maxAttempts int) *Webhook {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Webhook{URL: url, Secret: secret, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	backoff := w.Backoff
	if backoff == nil {
		backoff = nextBackoff
	}
	var lastErr error
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}
		lastErr = w.post(ctx, ev.Type, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("webhook: giving up after %d attempts: %w", w.MaxAttempts, lastErr)
}

func (w *Webhook) post(ctx context.Context, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
