package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dev-tams/deployprune/internal/config"
)

const (
	userAgent = "deployprune"

	HeaderRun    = "X-Deployprune-Run"
	HeaderBucket = "X-Deployprune-Bucket"
	HeaderStatus = "X-Deployprune-Status"
)

// webhookNotifier POSTs the Event as JSON. The run id header lets receivers drop duplicates.
type webhookNotifier struct {
	endpoint *url.URL
	headers  map[string]string
	client   *http.Client
}

func NewWebhook(details config.NotificationDetails) (Notifier, error) {
	raw := strings.TrimSpace(details.URL)
	if raw == "" {
		return nil, fmt.Errorf("config.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("config.url %q must be an absolute http(s) url", raw)
	}

	return &webhookNotifier{
		endpoint: u,
		headers:  maps.Clone(details.Headers),
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (w *webhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for bucket %s: %w", event.Bucket, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderRun, event.RunID)
	req.Header.Set(HeaderBucket, event.Bucket)
	req.Header.Set(HeaderStatus, event.Status)

	resp, err := w.client.Do(req)
	if err != nil {
		// report the host only, the url may embed a token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("post %s event for bucket %s to %s: %w", event.Status, event.Bucket, w.endpoint.Host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s event for bucket %s to %s: %s", event.Status, event.Bucket, w.endpoint.Host, resp.Status)
	}
	return nil
}
