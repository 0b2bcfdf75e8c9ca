// Package vpnclient talks to the VPN client's loopback control API: it
// reads and applies settings and triggers reconnects so restored settings
// take effect.
package vpnclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxResponseSize is the maximum response body size (1 MiB). Settings
// payloads are small; anything larger is a misbehaving endpoint.
const maxResponseSize = 1 << 20

// Client is the client for the VPN client control API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a control API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		logger:     logger.With("component", "vpnclient"),
	}, nil
}

// Settings fetches the current settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	if err := c.doRequest(ctx, http.MethodGet, "/v1/settings", nil, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplySettings replaces the enforcement-relevant settings.
func (c *Client) ApplySettings(ctx context.Context, s Settings) error {
	return c.doRequest(ctx, http.MethodPut, "/v1/settings", s, nil)
}

// Reconnect tells the VPN client to drop and re-establish the tunnel so
// applied settings take effect.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/v1/reconnect", nil, nil)
}

// doRequest handles JSON marshaling, request execution, and response
// decoding.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("vpnclient: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("vpnclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vpnclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}

	if result != nil {
		reader := io.LimitReader(resp.Body, maxResponseSize)
		if err := json.NewDecoder(reader).Decode(result); err != nil {
			return fmt.Errorf("vpnclient: decode response: %w", err)
		}
	}
	return nil
}
