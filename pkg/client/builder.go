package client

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/restflow/restflow-go/pkg/pipeline"
	"github.com/restflow/restflow-go/pkg/sse"
)

// PathBuilder builds request paths from explicit segments and terminates in
// one of the enumerated HTTP methods or an SSE subscription. Builders are
// immutable; each Path call returns an extended copy.
type PathBuilder struct {
	client   *Client
	segments []string
}

// Path starts a builder rooted at the given segments.
func (c *Client) Path(segments ...string) *PathBuilder {
	return &PathBuilder{client: c, segments: segments}
}

// Path returns a builder extended with more segments.
func (b *PathBuilder) Path(segments ...string) *PathBuilder {
	extended := make([]string, 0, len(b.segments)+len(segments))
	extended = append(extended, b.segments...)
	extended = append(extended, segments...)
	return &PathBuilder{client: b.client, segments: extended}
}

// String returns the built path.
func (b *PathBuilder) String() string {
	parts := make([]string, 0, len(b.segments))
	for _, s := range b.segments {
		if trimmed := strings.Trim(s, "/"); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// Get builds a lazy GET call.
func (b *PathBuilder) Get(opts ...CallOption) *Call {
	return b.call(http.MethodGet, nil, opts)
}

// Post builds a lazy POST call carrying body.
func (b *PathBuilder) Post(body any, opts ...CallOption) *Call {
	return b.call(http.MethodPost, body, opts)
}

// Put builds a lazy PUT call carrying body.
func (b *PathBuilder) Put(body any, opts ...CallOption) *Call {
	return b.call(http.MethodPut, body, opts)
}

// Patch builds a lazy PATCH call carrying body.
func (b *PathBuilder) Patch(body any, opts ...CallOption) *Call {
	return b.call(http.MethodPatch, body, opts)
}

// Delete builds a lazy DELETE call.
func (b *PathBuilder) Delete(opts ...CallOption) *Call {
	return b.call(http.MethodDelete, nil, opts)
}

// Head builds a lazy HEAD call.
func (b *PathBuilder) Head(opts ...CallOption) *Call {
	return b.call(http.MethodHead, nil, opts)
}

// Options builds a lazy OPTIONS call.
func (b *PathBuilder) Options(opts ...CallOption) *Call {
	return b.call(http.MethodOptions, nil, opts)
}

// SSE subscribes to the built path as an event stream. This is a terminal
// operation: the subscription starts immediately.
func (b *PathBuilder) SSE(ctx context.Context, cb sse.Callbacks, opts ...CallOption) *sse.Subscription {
	return b.client.Subscribe(ctx, b.String(), cb, opts...)
}

func (b *PathBuilder) call(method string, body any, opts []CallOption) *Call {
	return &Call{
		client: b.client,
		method: method,
		path:   b.String(),
		body:   body,
		opts:   opts,
	}
}

// Call is a built request that performs no network I/O until Do is invoked.
// The result is memoized: repeated Do calls perform exactly one network
// call and return the same response context.
type Call struct {
	client *Client
	method string
	path   string
	body   any
	opts   []CallOption

	once sync.Once
	resp *pipeline.ResponseContext
}

// Do executes the call, or returns the memoized result of the first
// execution.
func (cl *Call) Do(ctx context.Context) *pipeline.ResponseContext {
	cl.once.Do(func() {
		cl.resp = cl.client.Execute(ctx, cl.method, cl.path, cl.body, cl.opts...)
	})
	return cl.resp
}
