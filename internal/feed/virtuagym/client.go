// Package virtuagym implements the visit and member feed interfaces against
// the Virtuagym club API.
//
// All endpoints authenticate via api_key and club_secret query parameters
// and wrap their payload in a "result" field. Requests are paced by a token
// bucket limiter. HTTP 429 maps to feed.ErrThrottled.
package virtuagym

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/martijnchel/vg-homey-connector/internal/feed"
)

// Client is the shared HTTP client for all Virtuagym endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clubID     string
	apiKey     string
	clubSecret string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Virtuagym HTTP client with rate limiting.
func NewClient(baseURL, clubID, apiKey, clubSecret string, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		clubID:     clubID,
		apiKey:     apiKey,
		clubSecret: clubSecret,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// resultEnvelope is the common Virtuagym response wrapper.
type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// get performs a rate-limited GET request to a club endpoint and returns
// the raw result payload.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("club_secret", c.clubSecret)
	u := c.baseURL + "/club/" + c.clubID + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("virtuagym %s: %w", path, feed.ErrThrottled)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("virtuagym %s: %w", path, feed.ErrMemberNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("virtuagym %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return envelope.Result, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
