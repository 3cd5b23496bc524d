// Package upstream adapts the sidecar services that supply raw token facts.
// Both adapters speak plain JSON over HTTP and normalize "the upstream knows
// nothing about this token" into a found=false result rather than an error.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/swapfolio/swapfolio-go/internal/config"
)

type client struct {
	httpClient *http.Client
	baseURL    string
}

func newClient(cfg config.UpstreamServiceConfig) *client {
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// get fetches path and unmarshals the JSON body into result.
func (c *client) get(ctx context.Context, path string, result interface{}) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Swapfolio-Go/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
