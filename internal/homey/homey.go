// Package homey delivers notification tags to a Homey webhook endpoint.
//
// Delivery is an idempotent GET with the tag as a percent-encoded query
// parameter, matching the webhook flow configured on the Homey side. An
// unconfigured webhook URL makes the client a logged no-op rather than an
// error: the connector keeps syncing, it just has nowhere to notify.
package homey

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/martijnchel/vg-homey-connector/internal/feed"
)

// Client sends notifications to a single Homey webhook URL.
type Client struct {
	httpClient *http.Client
	webhookURL string
	logger     *slog.Logger
	warnOnce   sync.Once
}

// NewClient creates a Homey webhook client. webhookURL may be empty.
func NewClient(webhookURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Configured reports whether a webhook URL is set.
func (c *Client) Configured() bool { return c.webhookURL != "" }

// DeliverNotification sends the tag string as a GET request. A non-zero
// occurredAt is included as a secondary timestamp parameter for downstream
// correlation. Throttling responses map to feed.ErrThrottled so callers can
// distinguish them from other failures.
func (c *Client) DeliverNotification(ctx context.Context, text string, occurredAt time.Time) error {
	if c.webhookURL == "" {
		c.warnOnce.Do(func() {
			c.logger.Warn("HOMEY_URL not configured, notifications disabled")
		})
		return nil
	}

	params := url.Values{}
	params.Set("tag", text)
	if !occurredAt.IsZero() {
		params.Set("timestamp", strconv.FormatInt(occurredAt.UnixMilli(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webhookURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("homey webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("homey webhook: %w", feed.ErrThrottled)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("homey webhook returned %d", resp.StatusCode)
	}

	c.logger.Info("Homey webhook delivered", "tag", text, "status", resp.StatusCode)
	return nil
}
