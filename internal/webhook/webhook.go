// Package webhook posts batch outcomes to a configured URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPClient is the part of *http.Client the notifier uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier posts JSON events to one URL. A Notifier with an empty URL
// does nothing.
type Notifier struct {
	URL    string
	client HTTPClient
	logger *zap.Logger
}

// New returns a Notifier. A nil client gets an *http.Client with timeout.
func New(url string, client HTTPClient, timeout time.Duration, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{URL: url, client: client, logger: logger.Named("webhook")}
}

// Enabled reports whether a URL is configured.
func (n *Notifier) Enabled() bool { return n != nil && n.URL != "" }

// Notify posts event as JSON. Any non-2xx response is an error.
func (n *Notifier) Notify(ctx context.Context, event any) error {
	if !n.Enabled() {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned %d", n.URL, resp.StatusCode)
	}
	n.logger.Debug("event delivered", zap.String("url", n.URL), zap.Int("status", resp.StatusCode))
	return nil
}
