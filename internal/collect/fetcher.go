package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// httpClient wraps http.Client with a per-source rate limiter and retry on
// transient failures. One instance per collector; collectors share nothing.
type httpClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func newHTTPClient(cfg FetchConfig) *httpClient {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1.0
	}

	return &httpClient{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		maxRetries: cfg.MaxRetries,
	}
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do executes the request builder with rate limiting and exponential backoff.
// The builder is invoked per attempt because request bodies are single-use.
func (c *httpClient) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.IntN(250)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, eris.Wrap(err, "collect: build request")
		}
		req = req.WithContext(ctx)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return body, nil
		}

		lastErr = eris.Errorf("collect: unexpected status %d", resp.StatusCode)
		if !retryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, eris.Wrap(lastErr, "collect: retries exhausted")
}

// postJSON POSTs a JSON payload and decodes a JSON response.
func (c *httpClient) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "collect: marshal request")
	}

	respBody, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "collect: decode response")
	}
	return nil
}
