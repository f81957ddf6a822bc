// Package restflow is an HTTP client runtime for building typed
// request/response pipelines and consuming Server-Sent-Event streams.
//
// The runtime has two load-bearing pieces: a middleware composition engine
// that turns an ordered list of interceptor functions into a single
// onion-model dispatcher with single-invocation and short-circuit
// guarantees, and an SSE subsystem combining an incremental wire-format
// parser with a reconnection state machine supporting exponential backoff
// and Last-Event-ID resumption.
//
// # Overview
//
// The SDK consists of several sub-packages:
//
//   - pkg/client: the HTTP client, request builder and execution pipeline
//   - pkg/pipeline: the middleware chain compiler and per-call contexts
//   - pkg/sse: the SSE frame parser and subscription state machine
//   - pkg/middleware: ready-made cache, dedup, logging and request-id middleware
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/apierr: the structured error taxonomy
//   - pkg/logging: structured leveled logging
//
// # Making requests
//
//	c := restflow.New(
//	    restflow.WithBaseURL("http://localhost:3000"),
//	    restflow.WithMiddleware(restflow.LoggingMiddleware(logger)),
//	)
//
//	resp := c.Get(ctx, "/users", restflow.WithQueryParam("page", 1))
//	if resp.Err != nil {
//	    // resp.Err carries a numeric code, message and kind; the
//	    // pipeline never panics or returns a bare Go error.
//	}
//	users, err := client.As[[]User](resp)
//
// Calls can also be built lazily; a built call performs no network I/O
// until awaited and is memoized so repeated awaits hit the network once:
//
//	call := c.Path("users", "42").Get()
//	resp := call.Do(ctx)
//
// # Consuming event streams
//
//	sub := c.Subscribe(ctx, "/events", sse.Callbacks{
//	    OnMessage:   func(ev sse.Event) { ... },
//	    OnReconnect: func(attempt, max int) { ... },
//	})
//	defer sub.Unsubscribe()
//
// The subscription owns exactly one network stream at a time. On failure it
// reconnects with exponential backoff, resuming from the last seen event id;
// a clean server-side end is terminal and never reconnected.
package restflow
