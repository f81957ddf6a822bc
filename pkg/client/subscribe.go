package client

import (
	"context"
	"strings"

	"github.com/restflow/restflow-go/pkg/sse"
)

// Subscribe opens an SSE subscription to path, reusing the client's header
// and query conventions. The response body is never decoded by the
// execution pipeline; it is handed directly to the frame parser. The
// subscription reconnects on failure with exponential backoff, carrying the
// last seen event id, and stops after the configured maximum attempts.
func (c *Client) Subscribe(ctx context.Context, path string, cb sse.Callbacks, opts ...CallOption) *sse.Subscription {
	cfg := newCallConfig(opts)

	header := c.header.Clone()
	for k, vs := range cfg.header {
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	// Stream requests carry no body.
	header.Del("Content-Type")

	u := strings.TrimRight(c.baseURL, "/") + normalizePath(path)
	if len(cfg.query) > 0 {
		u += "?" + EncodeQuery(cfg.query)
	}

	return sse.Subscribe(ctx, u, sse.Config{
		Client:            c.streamClient,
		Header:            header,
		MaxReconnects:     c.sseMaxReconnects,
		ReconnectInterval: c.sseReconnectInterval,
		Logger:            c.logger,
	}, cb)
}
