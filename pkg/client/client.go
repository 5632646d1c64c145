// Package client is a small Go client for the honchkrow HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/server"
)

// Config holds client configuration
type Config struct {
	// BaseURL of the kernel server, e.g. "http://localhost:8000"
	BaseURL string
	Timeout time.Duration
}

// Client provides an interface to a running kernel server
type Client struct {
	baseURL string
	http    *http.Client
}

// LookupError reports a payload-level error from a lookup endpoint
type LookupError struct {
	Message string
}

func (e *LookupError) Error() string {
	return e.Message
}

// New creates a new client instance
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		// Cell execution has no server-side timeout, leave headroom
		cfg.Timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// RunCell executes code in the remote session. Execution failures are
// reported inside the returned envelope, not as an error.
func (c *Client) RunCell(ctx context.Context, code string) (*server.RunCellResponse, error) {
	body, err := json.Marshal(server.RunCellRequest{Code: code})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/run_cell", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run_cell request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("run_cell returned status %d", res.StatusCode)
	}

	var envelope server.RunCellResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode run_cell response: %w", err)
	}
	return &envelope, nil
}

// Variable fetches the formatted representation of a session variable.
// An undefined name yields a LookupError.
func (c *Client) Variable(ctx context.Context, name string) (*display.Data, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/variable/"+name, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("variable request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("variable returned status %d", res.StatusCode)
	}

	// The endpoint answers 200 for both shapes; the payload decides
	var payload struct {
		Error    string         `json:"error"`
		Data     map[string]any `json:"data"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode variable response: %w", err)
	}

	if payload.Error != "" {
		return nil, &LookupError{Message: payload.Error}
	}
	return &display.Data{Data: payload.Data, Metadata: payload.Metadata}, nil
}

// Image fetches stored image bytes by name
func (c *Client) Image(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images/"+name, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(res.Body).Decode(&payload); err == nil && payload.Error != "" {
			return nil, &LookupError{Message: payload.Error}
		}
		return nil, &LookupError{Message: "image not found: " + name}
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image returned status %d", res.StatusCode)
	}

	return io.ReadAll(res.Body)
}

// Manifest fetches the raw plugin manifest
func (c *Client) Manifest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/ai-plugin.json", nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest returned status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// Health checks the server health endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", res.StatusCode)
	}
	return nil
}
