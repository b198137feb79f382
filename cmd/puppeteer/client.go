package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoCodeAlone/puppeteer/server/api"
)

// Client talks to a puppeteerd REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func newClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// do sends body as JSON (when non-nil) and decodes the response into v
// (when non-nil). Error responses surface the server's error message.
func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is puppeteerd running at %s?): %w", c.BaseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// resolveAgent finds an agent by id first, then by name.
func (c *Client) resolveAgent(ctx context.Context, nameOrID string) (api.AgentView, error) {
	var a api.AgentView
	err := c.do(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(nameOrID), nil, &a)
	if err == nil {
		return a, nil
	}
	var agents []api.AgentView
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &agents); err != nil {
		return a, err
	}
	for _, ag := range agents {
		if ag.Name == nameOrID {
			return ag, nil
		}
	}
	return a, fmt.Errorf("agent %q not found, spawn it first", nameOrID)
}
