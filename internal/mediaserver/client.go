// Package mediaserver talks to the local media server's API to keep its
// advertised remote-access address pointing at the real public address of
// the bypass path.
package mediaserver

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

// maxErrorBody is the maximum number of bytes read from an error response body.
const maxErrorBody = 4096

// Connection is the media server's remote-access connection state.
type Connection struct {
	// ListenPort is the port the media server listens on locally.
	ListenPort int `json:"listen_port"`

	// AdvertisedAddress is the "host:port" the server currently publishes
	// for remote access. Empty when the server has never advertised.
	AdvertisedAddress string `json:"advertised_address"`
}

// Client is the client for the media server API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a media server API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		logger:     logger.With("component", "mediaserver"),
	}, nil
}

// Connection fetches the current connection state.
func (c *Client) Connection(ctx context.Context) (Connection, error) {
	resp, err := c.send(ctx, http.MethodGet, "/v1/connection", nil)
	if err != nil {
		return Connection{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Connection{}, statusErr(resp)
	}

	var conn Connection
	if err := json.NewDecoder(resp.Body).Decode(&conn); err != nil {
		return Connection{}, fmt.Errorf("mediaserver: decode connection: %w", err)
	}
	return conn, nil
}

// SetAdvertisedAddress updates the advertised remote-access address to the
// given "host:port".
func (c *Client) SetAdvertisedAddress(ctx context.Context, hostport string) error {
	body := struct {
		AdvertisedAddress string `json:"advertised_address"`
	}{AdvertisedAddress: hostport}

	resp, err := c.send(ctx, http.MethodPut, "/v1/connection", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusErr(resp)
	}
	c.logger.Info("advertised address updated", "address", hostport)
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("mediaserver: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("mediaserver: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Api-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediaserver: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("mediaserver: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
