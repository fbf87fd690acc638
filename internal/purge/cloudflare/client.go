// Package cloudflare implements a thin client for the Cloudflare cache-purge
// API with retry, backoff and error classification.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/configtypes"
)

// Options configures a Client
type Options struct {
	APIToken       string
	ZoneID         string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// OnRetry is invoked once per retried attempt, for accounting
	OnRetry func()
}

// Client talks to the Cloudflare API. It holds no request-specific mutable
// state and is safe for concurrent use.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
}

// Result is the decoded Cloudflare response envelope
type Result struct {
	Success    bool            `json:"success"`
	Errors     []APIMessage    `json:"errors"`
	Messages   []APIMessage    `json:"messages"`
	Result     json.RawMessage `json:"result"`
	StatusCode int             `json:"-"`
}

// TokenStatus is the result payload of a token verification call
type TokenStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// purgeBody is the JSON body of a purge_cache request; exactly one field set
type purgeBody struct {
	Files           []string `json:"files,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Prefixes        []string `json:"prefixes,omitempty"`
	PurgeEverything bool     `json:"purge_everything,omitempty"`
}

// NewClient creates a Cloudflare API client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.APIToken == "" {
		return nil, configurationError("API token is required")
	}
	if opts.ZoneID == "" {
		return nil, configurationError("zone ID is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.cloudflare.com/client/v4"
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// PurgeURLs purges specific URLs from the zone cache. The URL set must be
// non-empty and within the per-call ceiling; pre-batch larger sets.
func (c *Client) PurgeURLs(ctx context.Context, urls []string) (*Result, error) {
	if len(urls) == 0 {
		return nil, validationError("no URLs provided for purging")
	}
	if len(urls) > configtypes.CloudflareMaxFilesPerCall {
		return nil, validationError("%d URLs exceed the per-call limit of %d; batch before calling",
			len(urls), configtypes.CloudflareMaxFilesPerCall)
	}

	c.logger.Info("Purging URLs from cache",
		zap.String("zone_id", c.opts.ZoneID),
		zap.Int("url_count", len(urls)))

	return c.purge(ctx, purgeBody{Files: urls})
}

// PurgeEverything invalidates the entire zone cache
func (c *Client) PurgeEverything(ctx context.Context) (*Result, error) {
	c.logger.Info("Purging all cached content for zone",
		zap.String("zone_id", c.opts.ZoneID))

	return c.purge(ctx, purgeBody{PurgeEverything: true})
}

// PurgeTags purges content by cache tags. Requires an Enterprise plan; the
// API's rejection surfaces as ErrKindCapabilityUnavailable.
func (c *Client) PurgeTags(ctx context.Context, tags []string) (*Result, error) {
	if len(tags) == 0 {
		return nil, validationError("no tags provided for purging")
	}

	c.logger.Info("Purging content by cache tags",
		zap.String("zone_id", c.opts.ZoneID),
		zap.Int("tag_count", len(tags)))

	return c.purge(ctx, purgeBody{Tags: tags})
}

// PurgePrefixes purges content by URL prefixes. Enterprise-gated like tags.
func (c *Client) PurgePrefixes(ctx context.Context, prefixes []string) (*Result, error) {
	if len(prefixes) == 0 {
		return nil, validationError("no prefixes provided for purging")
	}

	c.logger.Info("Purging content by URL prefixes",
		zap.String("zone_id", c.opts.ZoneID),
		zap.Int("prefix_count", len(prefixes)))

	return c.purge(ctx, purgeBody{Prefixes: prefixes})
}

// VerifyToken confirms the configured credential is valid and reports its
// status. Diagnostic call, not retried.
func (c *Client) VerifyToken(ctx context.Context) (*TokenStatus, error) {
	result, err := c.doRequest(ctx, "GET", "/user/tokens/verify", nil)
	if err != nil {
		return nil, err
	}

	var status TokenStatus
	if len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, &status); err != nil {
			return nil, fmt.Errorf("failed to decode token status: %w", err)
		}
	}

	c.logger.Info("API token verified",
		zap.String("token_id", status.ID),
		zap.String("status", status.Status))

	return &status, nil
}

// purge posts a purge_cache request with retry on transient failures
func (c *Client) purge(ctx context.Context, body purgeBody) (*Result, error) {
	endpoint := fmt.Sprintf("/zones/%s/purge_cache", c.opts.ZoneID)

	var lastErr *APIError
	maxAttempts := c.opts.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.doRequest(ctx, "POST", endpoint, &body)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("Purge succeeded after retry",
					zap.Int("attempt", attempt))
			}
			return result, nil
		}

		apiErr, ok := err.(*APIError)
		if !ok {
			return nil, err
		}
		if !apiErr.Kind.Retryable() {
			return nil, apiErr
		}
		lastErr = apiErr

		if attempt == maxAttempts {
			break
		}

		delay := c.opts.RetryBaseDelay * (1 << (attempt - 1))
		if c.opts.OnRetry != nil {
			c.opts.OnRetry()
		}
		c.logger.Warn("Transient purge failure, retrying with backoff",
			zap.Int("attempt", attempt),
			zap.Int("status", apiErr.StatusCode),
			zap.Duration("retry_after", delay),
			zap.Error(apiErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &APIError{Kind: ErrKindDeliveryFailed, Err: ctx.Err()}
		}
	}

	return nil, &APIError{
		Kind:       ErrKindDeliveryFailed,
		StatusCode: lastErr.StatusCode,
		Errors:     lastErr.Errors,
		Err:        lastErr,
	}
}

// doRequest performs one HTTP round trip and decodes the response envelope
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body *purgeBody) (*Result, error) {
	url := c.opts.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIToken)
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now().UTC()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("HTTP request to Cloudflare failed",
			zap.String("endpoint", endpoint),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return nil, &APIError{Kind: ErrKindTransient, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: ErrKindTransient, StatusCode: resp.StatusCode, Err: err}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		// Non-JSON body; classify on status alone
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode API response: %w", err)
		}
		return nil, &APIError{
			Kind:       classifyStatus(resp.StatusCode, nil),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("non-JSON error response: %s", truncate(respBody, 200)),
		}
	}
	result.StatusCode = resp.StatusCode

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && result.Success {
		c.logger.Debug("Cloudflare request completed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(startTime)))
		return &result, nil
	}

	return nil, &APIError{
		Kind:       classifyStatus(resp.StatusCode, result.Errors),
		StatusCode: resp.StatusCode,
		Errors:     result.Errors,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
