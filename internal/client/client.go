// Package client provides an HTTP and WebSocket client for the
// fieldnotes server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/metrics"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Client talks to the fieldnotes server's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, uses the
// FIELDNOTES_SERVER_URL env var or defaults to localhost:8090.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("FIELDNOTES_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8090"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("FIELDNOTES_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured server endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health reports whether the server is up and how many sessions it is
// running.
type Health struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

// GetHealth checks server health.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Stats is the server statistics payload.
type Stats struct {
	ActiveSessions int               `json:"active_sessions"`
	Operations     *metrics.Snapshot `json:"operations,omitempty"`
	Connections    []StatusCount     `json:"connections,omitempty"`
}

// StatusCount is the number of connections in one review status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// GetStats fetches runtime statistics. If userID is non-empty the
// response includes per-status connection counts for that user.
func (c *Client) GetStats(ctx context.Context, userID string) (*Stats, error) {
	path := "/v1/stats"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	var s Stats
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListConnections fetches connections for a user, optionally filtered
// by status. A limit of 0 means server default.
func (c *Client) ListConnections(ctx context.Context, userID string, status models.ConnectionStatus, limit int) ([]models.Connection, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	if status != "" {
		params.Set("status", string(status))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var body struct {
		Connections []models.Connection `json:"connections"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/connections?"+params.Encode(), nil, &body); err != nil {
		return nil, err
	}
	return body.Connections, nil
}

// GetConnection fetches one connection by id.
func (c *Client) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	var conn models.Connection
	if err := c.do(ctx, http.MethodGet, "/v1/connections/"+url.PathEscape(id), nil, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// SetConnectionStatus moves a connection to a new review status.
func (c *Client) SetConnectionStatus(ctx context.Context, id string, status models.ConnectionStatus) (*models.Connection, error) {
	req := map[string]models.ConnectionStatus{"status": status}
	var conn models.Connection
	if err := c.do(ctx, http.MethodPost, "/v1/connections/"+url.PathEscape(id)+"/status", req, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// ListInteractions fetches the encounter log for a connection.
func (c *Client) ListInteractions(ctx context.Context, connectionID string) ([]models.Interaction, error) {
	var body struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/connections/"+url.PathEscape(connectionID)+"/interactions", nil, &body); err != nil {
		return nil, err
	}
	return body.Interactions, nil
}
