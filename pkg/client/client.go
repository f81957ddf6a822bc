// Package client implements the restflow HTTP client: a typed
// request/response execution pipeline built on a middleware chain, plus
// SSE subscriptions sharing the same request-building conventions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restflow/restflow-go/pkg/apierr"
	"github.com/restflow/restflow-go/pkg/logging"
	"github.com/restflow/restflow-go/pkg/pipeline"
)

// RetryConfig controls pipeline-level retries. A retry re-dispatches the
// whole chain with a fresh dispatch state and an incremented RetryCount; a
// spent next() is never re-entered.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Client is a resilient HTTP client executing calls through a compiled
// middleware chain. It is safe for concurrent use; each call owns its
// request context exclusively.
type Client struct {
	baseURL    string
	header     http.Header
	timeout    time.Duration
	httpClient *http.Client

	// streamClient mirrors httpClient without a global timeout, which
	// would kill long-lived SSE streams.
	streamClient *http.Client

	middleware []pipeline.Middleware
	chain      *pipeline.Chain
	logger     logging.Logger
	retry      RetryConfig

	sseMaxReconnects     int
	sseReconnectInterval time.Duration
}

// New constructs a Client from functional options. The middleware chain is
// compiled once here and is immutable for the client's lifetime.
func New(options ...Option) *Client {
	c := &Client{
		header:               make(http.Header),
		timeout:              30 * time.Second,
		httpClient:           &http.Client{},
		logger:               logging.NewNop(),
		retry:                RetryConfig{Multiplier: 2.0},
		sseMaxReconnects:     5,
		sseReconnectInterval: time.Second,
	}
	c.header.Set("Content-Type", "application/json")
	c.header.Set("Accept", "application/json, text/plain")

	for _, opt := range options {
		opt(c)
	}

	c.chain = pipeline.NewChain(c.middleware...)
	c.streamClient = &http.Client{
		Transport:     c.httpClient.Transport,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get executes a GET request. A non-nil body is encoded as query parameters.
func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) *pipeline.ResponseContext {
	return c.Execute(ctx, http.MethodGet, path, nil, opts...)
}

// Post executes a POST request with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) *pipeline.ResponseContext {
	return c.Execute(ctx, http.MethodPost, path, body, opts...)
}

// Put executes a PUT request with a JSON-encoded body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...CallOption) *pipeline.ResponseContext {
	return c.Execute(ctx, http.MethodPut, path, body, opts...)
}

// Patch executes a PATCH request with a JSON-encoded body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...CallOption) *pipeline.ResponseContext {
	return c.Execute(ctx, http.MethodPatch, path, body, opts...)
}

// Delete executes a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) *pipeline.ResponseContext {
	return c.Execute(ctx, http.MethodDelete, path, nil, opts...)
}

// Execute runs one call through the middleware chain, terminating in the
// actual network request. It never returns a Go error: every failure is
// normalized into the response context's Err field and callers branch on it.
func (c *Client) Execute(ctx context.Context, method, path string, body any, opts ...CallOption) *pipeline.ResponseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := newCallConfig(opts)
	rc := c.buildContext(ctx, method, path, body, cfg)

	// An already-fired cancellation aborts before any I/O; don't race a
	// signal that has already fired.
	if ctx.Err() != nil {
		return &pipeline.ResponseContext{Request: rc, Err: apierr.NewAbort(ctx.Err())}
	}

	timeout := c.timeout
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}
	if timeout > 0 {
		rc.Timeout = timeout
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		rc.WithContext(runCtx)
	}

	return c.run(ctx, rc)
}

// buildContext assembles the per-call request context from client defaults
// and per-call overrides. Building twice from the same inputs yields
// contexts producing identical outbound requests.
func (c *Client) buildContext(ctx context.Context, method, path string, body any, cfg *callConfig) *pipeline.RequestContext {
	rc := pipeline.NewRequestContext(ctx, method, normalizePath(path))

	rc.Header = c.header.Clone()
	if rc.Header == nil {
		rc.Header = make(http.Header)
	}
	for k, vs := range cfg.header {
		rc.Header.Del(k)
		for _, v := range vs {
			rc.Header.Add(k, v)
		}
	}
	// A bodyless method must not imply a payload.
	if isBodyless(method) {
		rc.Header.Del("Content-Type")
	}

	rc.Body = body
	for k, v := range cfg.query {
		rc.Query[k] = v
	}
	rc.Timeout = cfg.timeout

	rc.Meta[pipeline.MetaBaseURL] = c.baseURL
	rc.Meta[pipeline.MetaRequestID] = uuid.NewString()
	for k, v := range cfg.meta {
		rc.Meta[k] = v
	}
	return rc
}

// run drives the chain, converting middleware failures into unknown-kind
// errors and applying the retry policy across whole-chain re-dispatches.
func (c *Client) run(callerCtx context.Context, rc *pipeline.RequestContext) (resp *pipeline.ResponseContext) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in request pipeline",
				logging.String("method", rc.Method),
				logging.String("path", rc.Path),
				logging.Any("panic", r))
			resp = &pipeline.ResponseContext{
				Request: rc,
				Err:     apierr.NewUnknown(fmt.Errorf("panic in middleware: %v", r)),
			}
		}
	}()

	terminal := c.terminalHandler(callerCtx)
	for attempt := 0; ; attempt++ {
		rc.RetryCount = attempt
		r, err := c.chain.Dispatch(rc, terminal)
		if err != nil {
			// Middleware errors are the one thing that escapes
			// Dispatch; they surface as unknown-kind failures.
			r = &pipeline.ResponseContext{Request: rc, Err: apierr.NewUnknown(err)}
		} else if r == nil {
			r = &pipeline.ResponseContext{
				Request: rc,
				Err:     apierr.NewUnknown(errors.New("middleware returned no response")),
			}
		}

		if r.Err == nil || attempt >= c.retry.MaxRetries || !isRetryable(r.Err) || rc.Context().Err() != nil {
			return r
		}

		delay := retryDelay(c.retry, attempt)
		c.logger.Debug("retrying request",
			logging.String("method", rc.Method),
			logging.String("path", rc.Path),
			logging.Int("attempt", attempt+1),
			logging.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-rc.Context().Done():
			return r
		}
	}
}

// terminalHandler returns the chain terminal performing the network call.
// callerCtx is the caller's own cancellation handle, kept separate from the
// derived deadline context so failures classify as timeout vs abort.
func (c *Client) terminalHandler(callerCtx context.Context) pipeline.Handler {
	return func(rc *pipeline.RequestContext) (*pipeline.ResponseContext, error) {
		resp := &pipeline.ResponseContext{Request: rc}

		req, err := c.newHTTPRequest(rc)
		if err != nil {
			resp.Err = apierr.NewUnknown(err)
			return resp, nil
		}

		c.logger.Debug("sending request",
			logging.String("method", rc.Method),
			logging.String("url", req.URL.String()))

		raw, err := c.httpClient.Do(req)
		if err != nil {
			resp.Err = apierr.Classify(callerCtx, err)
			return resp, nil
		}

		resp.Raw = raw
		resp.Status = raw.StatusCode
		c.decodeBody(callerCtx, resp, raw)
		return resp, nil
	}
}

// newHTTPRequest serializes the request context into an outbound request.
// For GET/HEAD a map-like body becomes query parameters; other methods may
// carry both a JSON body and an explicit query.
func (c *Client) newHTTPRequest(rc *pipeline.RequestContext) (*http.Request, error) {
	query := make(map[string]any, len(rc.Query)+4)
	for k, v := range rc.Query {
		query[k] = v
	}

	var bodyReader io.Reader
	if isBodyless(rc.Method) {
		if rc.Body != nil {
			bodyQuery, err := toQueryMap(rc.Body)
			if err != nil {
				return nil, fmt.Errorf("cannot encode %s body as query: %w", rc.Method, err)
			}
			for k, v := range bodyQuery {
				query[k] = v
			}
		}
	} else if rc.Body != nil {
		switch b := rc.Body.(type) {
		case []byte:
			bodyReader = bytes.NewReader(b)
		case io.Reader:
			bodyReader = b
		default:
			data, err := json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			bodyReader = bytes.NewReader(data)
		}
	}

	u := strings.TrimRight(c.baseURL, "/") + rc.Path
	if len(query) > 0 {
		u += "?" + EncodeQuery(query)
	}

	req, err := http.NewRequestWithContext(rc.Context(), rc.Method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = rc.Header.Clone()
	return req, nil
}

// decodeBody reads and decodes the reply by declared content type. Success
// is classified strictly by the 2xx/3xx status range, never by a
// payload-level flag.
func (c *Client) decodeBody(callerCtx context.Context, resp *pipeline.ResponseContext, raw *http.Response) {
	defer func() {
		_ = raw.Body.Close()
	}()

	data, err := io.ReadAll(raw.Body)
	if err != nil {
		resp.Err = apierr.Classify(callerCtx, err)
		return
	}

	success := raw.StatusCode >= 200 && raw.StatusCode < 400
	contentType := raw.Header.Get("Content-Type")

	var payload any
	switch {
	case strings.Contains(contentType, "application/json"):
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				if success {
					resp.Err = apierr.NewUnknown(fmt.Errorf("failed to decode response: %w", err))
					return
				}
				payload = nil
			}
		}
	case strings.HasPrefix(contentType, "text/"):
		payload = string(data)
	default:
		// Caller-specific handling expected; leave undecoded.
		payload = data
	}

	if success {
		resp.Data = payload
		return
	}
	resp.Err = apierr.FromPayload(raw.StatusCode, payload)
}

// As decodes a successful response's payload into T, re-encoding through
// JSON when the decoded value is not already a T.
func As[T any](resp *pipeline.ResponseContext) (T, error) {
	var out T
	if resp == nil {
		return out, errors.New("nil response")
	}
	if resp.Err != nil {
		return out, resp.Err
	}
	if resp.Data == nil {
		return out, nil
	}
	if v, ok := resp.Data.(T); ok {
		return v, nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return out, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode payload into %T: %w", out, err)
	}
	return out, nil
}

// normalizePath ensures a single leading slash.
func normalizePath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}

// isBodyless reports whether the method never carries a request body.
func isBodyless(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// toQueryMap converts an arbitrary body value into a flat parameter map,
// round-tripping through JSON when it is not already a map.
func toQueryMap(body any) (map[string]any, error) {
	if m, ok := body.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// isRetryable reports whether the retry policy may re-dispatch after this
// failure. Aborts are caller-initiated and never retried.
func isRetryable(err *apierr.Error) bool {
	switch err.Kind {
	case apierr.KindNetwork, apierr.KindTimeout:
		return true
	case apierr.KindServer:
		return err.Code >= 500 && err.Code < 600
	default:
		return false
	}
}

// retryDelay computes the delay before re-dispatch attempt+1.
func retryDelay(cfg RetryConfig, attempt int) time.Duration {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}
	d := time.Duration(float64(initial) * pow(multiplier, attempt))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
