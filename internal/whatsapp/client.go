// Package whatsapp implements the downstream send-API client. The
// provider accepts a template message per recipient and returns a
// provider message id used later to correlate delivery webhooks.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client sends template messages through the provider's messages API.
type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// NewClient creates a send client. The timeout covers connect plus read
// and is independent of any circuit breaker wrapping the call.
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
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

type outboundMessage struct {
	To       string    `json:"to"`
	Type     string    `json:"type"`
	Template *template `json:"template,omitempty"`
	Text     *textBody `json:"text,omitempty"`
}

type template struct {
	Name     string   `json:"name"`
	Language language `json:"language"`
}

type language struct {
	Code string `json:"code"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate delivers a template message and returns the provider
// message id.
func (c *Client) SendTemplate(ctx context.Context, to, templateName string) (string, error) {
	return c.send(ctx, outboundMessage{
		To:       to,
		Type:     "template",
		Template: &template{Name: templateName, Language: language{Code: "en"}},
	})
}

// SendText delivers a free-form text message and returns the provider
// message id. Only valid inside an open conversation window.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "text",
		Text: &textBody{Body: text},
	})
}

func (c *Client) send(ctx context.Context, msg outboundMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, To: msg.To}
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("send response missing message id")
	}
	return result.Messages[0].ID, nil
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	To         string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api returned HTTP %d", e.StatusCode)
}

// IsTerminal reports whether the error is a client-side rejection that
// retrying cannot fix. 429 is excluded: the provider asks us to slow
// down, not to stop.
func IsTerminal(err error) bool {
	if ae, ok := err.(*APIError); ok {
		return ae.StatusCode >= 400 && ae.StatusCode < 500 && ae.StatusCode != http.StatusTooManyRequests
	}
	return false
}
