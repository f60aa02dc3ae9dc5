// Package client is the HTTP transport shared by vendor adapters. It
// attaches bearer auth from the token manager and normalizes transport
// failures; request and response shapes belong to the adapters.
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

	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/smallbiznis/meterbill/internal/marketplace/token"
	"go.uber.org/zap"
)

// Config configures the marketplace HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	tokens *token.Manager
	log    *zap.Logger
}

func New(cfg Config, tokens *token.Manager, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		log:    log.Named("marketplace.client"),
	}
}

// PostJSON submits a JSON payload and decodes the JSON response into
// out. Non-2xx statuses are errors; 401 invalidates the cached token so
// the caller's retry fetches a fresh one.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

// GetJSON fetches a JSON resource into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	tok, err := c.tokens.EnsureToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The cached token is no longer honored. Invalidate it so the
		// retry wrapper picks up a fresh one on the next attempt.
		c.tokens.ForceRefresh()
		return fmt.Errorf("%w: status %d", marketplacedomain.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn("marketplace call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
