package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/restflow/restflow-go/pkg/apierr"
)

// Well-known Meta keys seeded by the client before dispatch.
const (
	// MetaBaseURL carries the resolved base URL so middleware can build
	// absolute URLs without re-resolving client state.
	MetaBaseURL = "base_url"

	// MetaRequestID carries the per-call request id.
	MetaRequestID = "request_id"
)

// RequestContext is the mutable per-call state threaded through the
// middleware chain. Exactly one exists per logical call; it is mutated in
// place by middleware and never shared across concurrent calls.
type RequestContext struct {
	Method string
	Path   string
	Header http.Header

	// Body is the unencoded request payload, or nil when absent. For
	// GET/HEAD a map body is treated as query parameters instead.
	Body any

	// Query holds explicit query parameters. Values may be nested maps
	// and slices, encoded with bracketed indices on the wire.
	Query map[string]any

	// Timeout is the per-call deadline, zero when unset.
	Timeout time.Duration

	// Meta carries arbitrary per-call metadata plus client-scoped values.
	Meta map[string]any

	// RetryCount is incremented by the retry layer on every re-dispatch.
	RetryCount int

	ctx context.Context
}

// NewRequestContext creates a request context bound to ctx. A nil ctx
// defaults to context.Background().
func NewRequestContext(ctx context.Context, method, path string) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RequestContext{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Query:  make(map[string]any),
		Meta:   make(map[string]any),
		ctx:    ctx,
	}
}

// Context returns the cancellation context for this call.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}

// WithContext replaces the cancellation context for this call.
func (rc *RequestContext) WithContext(ctx context.Context) {
	rc.ctx = ctx
}

// ResponseContext is the uniform result of one dispatched call. Data and Err
// are mutually exclusive on terminal completion; Raw and Status may be set
// even when the call failed at the application level.
type ResponseContext struct {
	// Request is the originating request context. Read-only by convention.
	Request *RequestContext

	// Raw is the underlying network response, nil on transport failure.
	Raw *http.Response

	// Status is the HTTP status code, zero on transport failure.
	Status int

	// Data is the decoded response payload, nil on failure.
	Data any

	// Err is the structured failure, nil on success.
	Err *apierr.Error
}

// OK reports whether the call completed without error.
func (resp *ResponseContext) OK() bool {
	return resp.Err == nil
}
