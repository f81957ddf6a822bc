// Package restflow provides an HTTP client runtime for typed
// request/response pipelines and Server-Sent-Event streams.
package restflow

import (
	"github.com/restflow/restflow-go/pkg/client"
	"github.com/restflow/restflow-go/pkg/middleware"
	"github.com/restflow/restflow-go/pkg/pipeline"
	"github.com/restflow/restflow-go/pkg/sse"
)

// Version is the current version of the SDK.
const Version = "1.0.0"

// These exports provide direct access to the core SDK components.
var (
	// New creates a new restflow client.
	New = client.New

	// NewChain compiles a middleware chain.
	NewChain = pipeline.NewChain

	// Subscribe opens a standalone SSE subscription.
	Subscribe = sse.Subscribe
)

// Client options.
var (
	WithBaseURL           = client.WithBaseURL
	WithHeader            = client.WithHeader
	WithTimeout           = client.WithTimeout
	WithHTTPClient        = client.WithHTTPClient
	WithLogger            = client.WithLogger
	WithMiddleware        = client.WithMiddleware
	WithRetry             = client.WithRetry
	WithMaxReconnects     = client.WithMaxReconnects
	WithReconnectInterval = client.WithReconnectInterval
)

// Per-call options.
var (
	WithCallHeader  = client.WithCallHeader
	WithCallTimeout = client.WithCallTimeout
	WithQuery       = client.WithQuery
	WithQueryParam  = client.WithQueryParam
	WithMeta        = client.WithMeta
)

// Built-in middleware.
var (
	CacheMiddleware      = middleware.Cache
	DedupMiddleware      = middleware.Dedup
	LoggingMiddleware    = middleware.Logging
	RequestIDMiddleware  = middleware.RequestID
	BearerAuthMiddleware = middleware.BearerAuth
	APIKeyAuthMiddleware = middleware.APIKeyAuth
)
