// Package pipeline implements the middleware composition engine and the
// per-call request/response contexts used by the restflow client.
//
// Middleware compose in the onion model: pre-processing runs in installation
// order, post-processing in reverse installation order, and each frame's
// captured next may be invoked at most once.
package pipeline

import "fmt"

// Next resumes the chain from inside a middleware. Calling it more than once
// within the same frame is an invariant violation.
type Next func() (*ResponseContext, error)

// Middleware inspects or mutates the request context before calling next,
// and the returned response context after next resolves. A middleware may
// short-circuit by returning its own response without calling next.
type Middleware func(rc *RequestContext, next Next) (*ResponseContext, error)

// Handler is the terminal of a chain, usually the actual network call.
type Handler func(rc *RequestContext) (*ResponseContext, error)

// InvariantViolationError is returned when a captured next is invoked after
// its frame has already dispatched past it.
type InvariantViolationError struct {
	Index int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("pipeline: next() called multiple times in middleware %d", e.Index)
}

// Chain is an ordered, immutable list of middleware compiled into a single
// dispatcher. Build it once at client-configuration time.
type Chain struct {
	middleware []Middleware
}

// NewChain creates a chain from the given middleware in installation order.
func NewChain(middleware ...Middleware) *Chain {
	mw := make([]Middleware, len(middleware))
	copy(mw, middleware)
	return &Chain{middleware: mw}
}

// Len returns the number of installed middleware.
func (c *Chain) Len() int {
	return len(c.middleware)
}

// dispatchState tracks the highest index dispatched during one Dispatch
// invocation. One state exists per logical call, so concurrent calls through
// the same chain never interfere.
type dispatchState struct {
	highest int
}

// Dispatch runs rc through the chain, ending in terminal. Errors returned by
// middleware propagate out of Dispatch unchanged; converting them into a
// uniform error result is the execution pipeline's job, not the chain's.
func (c *Chain) Dispatch(rc *RequestContext, terminal Handler) (*ResponseContext, error) {
	st := &dispatchState{highest: -1}
	return c.dispatch(st, 0, rc, terminal)
}

func (c *Chain) dispatch(st *dispatchState, i int, rc *RequestContext, terminal Handler) (*ResponseContext, error) {
	if i <= st.highest {
		return nil, &InvariantViolationError{Index: i - 1}
	}
	st.highest = i

	if i >= len(c.middleware) {
		return terminal(rc)
	}

	next := func() (*ResponseContext, error) {
		return c.dispatch(st, i+1, rc, terminal)
	}
	return c.middleware[i](rc, next)
}
