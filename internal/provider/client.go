package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxResponseBytes caps provider response bodies.
const maxResponseBytes = 10 << 20

// Client executes provider API calls under an effective timeout.
type Client struct {
	httpClient     *http.Client
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewClient builds a Client. defaultTimeout applies when an adapter has
// no override.
func NewClient(defaultTimeout time.Duration, logger *zap.Logger) *Client {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:     &http.Client{},
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Fetch performs the provider call and returns the response body. A
// non-2xx status is an error; timeouts surface as context errors and
// are treated by callers like any other provider failure.
func (c *Client) Fetch(ctx context.Context, adapter Adapter, req Request) ([]byte, error) {
	timeout := adapter.Timeout()
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	c.logger.Debug("provider call finished",
		zap.String("provider", adapter.ID()),
		zap.String("url", RedactKey(req.URL, "api_key", "apiKey", "apikey", "token", "key")),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider %s returned status %d", adapter.ID(), resp.StatusCode)
	}
	return body, nil
}
