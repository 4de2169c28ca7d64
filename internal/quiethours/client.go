// Package quiethours resolves do-not-disturb windows for outbound sends.
// Resolution prefers a cached answer, then the external window API behind
// a circuit breaker, then a static hour table when the API is down.
package quiethours

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WindowInfo is the window API's verdict for one proposed instant.
type WindowInfo struct {
	InWindow   bool      `json:"inWindow"`
	WindowEnd  time.Time `json:"windowEndTime"`
	WindowName string    `json:"windowName"`
}

// Client calls the external window-boundary API.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a window API client with standard transport settings.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type windowRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Region    string    `json:"region"`
}

// Check asks whether the proposed time falls inside a restricted window
// for the region.
func (c *Client) Check(ctx context.Context, proposed time.Time, region string) (*WindowInfo, error) {
	body, err := json.Marshal(windowRequest{Timestamp: proposed, Region: region})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal window request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("window api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var info WindowInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode window response: %w", err)
	}
	return &info, nil
}

// HTTPError represents a non-2xx response from the window API.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	if he, ok := err.(*HTTPError); ok {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
