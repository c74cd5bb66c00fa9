// Package clients provides the HTTP client shared by all source adapters.
// It wraps the standard transport with connection pooling, per-request
// timeouts, optional rate limiting, and translation of transport-level
// failures into the oceansync error taxonomy.
package clients

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/syncerrors"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// RequestTimeout bounds one request, dial to body close
	RequestTimeout time.Duration `json:"request_timeout"`
	// RateLimitPerSec caps requests per second (0 = unlimited)
	RateLimitPerSec float64 `json:"rate_limit_per_sec"`

	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DialTimeout         time.Duration `json:"dial_timeout"`
}

// DefaultHTTPConfig returns sensible defaults for provider traffic
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		RequestTimeout:      30 * time.Second,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
	}
}

// HTTPClient is a pooled HTTP client with typed error translation
type HTTPClient struct {
	config      *HTTPConfig
	logger      *zap.Logger
	httpClient  *http.Client
	rateLimiter *TokenBucketRateLimiter

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(cfg *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout: cfg.DialTimeout,
		}).DialContext,
	}

	c := &HTTPClient{
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}
	if cfg.RateLimitPerSec > 0 {
		c.rateLimiter = NewTokenBucketRateLimiter(cfg.RateLimitPerSec, 1)
	}
	return c
}

// Get performs a GET request and returns the response body. Non-2xx
// responses and transport failures are returned as typed errors:
// 401/403 map to auth, timeouts to timeout, everything else to transport.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeTransport, "rate limiter interrupted")
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeTransport, "failed to build request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	atomic.AddInt64(&c.totalRequests, 1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		atomic.AddInt64(&c.failedRequests, 1)
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, classifyStatusError(resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeTransport, "failed to read response body")
	}
	return body, nil
}

// Stats returns request counters for this client
func (c *HTTPClient) Stats() (total, failed int64) {
	return atomic.LoadInt64(&c.totalRequests), atomic.LoadInt64(&c.failedRequests)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, "request timed out")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, "request timed out")
	}
	return syncerrors.Wrap(err, syncerrors.ErrorTypeTransport, "request failed")
}

func classifyStatusError(status int, url string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return syncerrors.Newf(syncerrors.ErrorTypeAuth, "request to %s rejected with status %d", url, status).
			WithDetail("status", status)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return syncerrors.Newf(syncerrors.ErrorTypeTransport, "request to %s failed with status %d", url, status).
			WithDetail("status", status)
	default:
		return syncerrors.Newf(syncerrors.ErrorTypeValidation, "request to %s returned unexpected status %d", url, status).
			WithDetail("status", status)
	}
}
