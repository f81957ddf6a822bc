package client

import (
	"net/http"
	"time"

	"github.com/restflow/restflow-go/pkg/logging"
	"github.com/restflow/restflow-go/pkg/pipeline"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithBaseURL sets the base URL prefixed to every request path.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHeader sets a default header sent on every request. Per-call headers
// override it on conflict.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithTimeout sets the default per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its Timeout field is
// ignored for SSE streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the structured logger used by the client and its
// subscriptions.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMiddleware appends middleware to the chain in installation order.
func WithMiddleware(mw ...pipeline.Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithRetry enables pipeline-level retries for network, timeout and 5xx
// failures.
func WithRetry(maxRetries int, initialDelay time.Duration, multiplier float64) Option {
	return func(c *Client) {
		c.retry = RetryConfig{
			MaxRetries:   maxRetries,
			InitialDelay: initialDelay,
			Multiplier:   multiplier,
		}
	}
}

// WithMaxReconnects bounds SSE reconnection attempts.
func WithMaxReconnects(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sseMaxReconnects = n
		}
	}
}

// WithReconnectInterval sets the SSE backoff base interval.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.sseReconnectInterval = d
		}
	}
}

// callConfig is the per-call override set.
type callConfig struct {
	header  http.Header
	timeout time.Duration
	query   map[string]any
	meta    map[string]any
}

func newCallConfig(opts []CallOption) *callConfig {
	cfg := &callConfig{
		header: make(http.Header),
		query:  make(map[string]any),
		meta:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// CallOption configures a single call.
type CallOption func(*callConfig)

// WithCallHeader sets a header for this call only, overriding the client
// default on conflict.
func WithCallHeader(key, value string) CallOption {
	return func(cfg *callConfig) {
		cfg.header.Set(key, value)
	}
}

// WithCallTimeout overrides the client's default timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(cfg *callConfig) {
		cfg.timeout = d
	}
}

// WithQuery merges explicit query parameters into this call. Values may be
// nested maps and slices; they are encoded with bracketed indices.
func WithQuery(params map[string]any) CallOption {
	return func(cfg *callConfig) {
		for k, v := range params {
			cfg.query[k] = v
		}
	}
}

// WithQueryParam sets a single query parameter.
func WithQueryParam(key string, value any) CallOption {
	return func(cfg *callConfig) {
		cfg.query[key] = value
	}
}

// WithMeta attaches arbitrary metadata to the call's context, visible to
// middleware.
func WithMeta(key string, value any) CallOption {
	return func(cfg *callConfig) {
		cfg.meta[key] = value
	}
}
