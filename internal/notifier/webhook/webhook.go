// Package webhook posts notifications to a chat webhook (Discord-compatible
// {"content": "..."} payload).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// Config controls the webhook client.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// Client overrides the HTTP client (tests inject httptest's).
	Client *http.Client
}

// Notifier implements watch.Notifier.
type Notifier struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

type payload struct {
	Content string `json:"content"`
}

// New validates the endpoint and builds a Notifier.
func New(cfg Config) (*Notifier, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("webhook url: %w", watch.ErrInsecureURL)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Notifier{endpoint: cfg.URL, userAgent: cfg.UserAgent, client: client}, nil
}

// Notify posts message and returns the response status without judging it.
func (n *Notifier) Notify(ctx context.Context, message string) (int, error) {
	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		// *url.Error repeats the full endpoint, token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(n.endpoint)
		}
		return 0, &watch.TransportError{Op: "notify", URL: redact(n.endpoint), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // drained below
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// redact drops the path so webhook tokens never reach logs.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "webhook"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
