package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okTerminal(rc *RequestContext) (*ResponseContext, error) {
	return &ResponseContext{Request: rc, Status: 200, Data: "terminal"}, nil
}

func TestChainOnionOrder(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return func(rc *RequestContext, next Next) (*ResponseContext, error) {
			trace = append(trace, name+":pre")
			resp, err := next()
			trace = append(trace, name+":post")
			return resp, err
		}
	}

	chain := NewChain(mw("a"), mw("b"), mw("c"))
	rc := NewRequestContext(context.Background(), "GET", "/x")

	terminalCalled := false
	resp, err := chain.Dispatch(rc, func(rc *RequestContext) (*ResponseContext, error) {
		terminalCalled = true
		trace = append(trace, "terminal")
		return okTerminal(rc)
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, terminalCalled)
	assert.Equal(t, []string{
		"a:pre", "b:pre", "c:pre",
		"terminal",
		"c:post", "b:post", "a:post",
	}, trace)
}

func TestChainEmptyRunsTerminal(t *testing.T) {
	chain := NewChain()
	rc := NewRequestContext(context.Background(), "GET", "/x")

	resp, err := chain.Dispatch(rc, okTerminal)
	require.NoError(t, err)
	assert.Equal(t, "terminal", resp.Data)
}

func TestChainNextCalledTwiceFails(t *testing.T) {
	double := func(rc *RequestContext, next Next) (*ResponseContext, error) {
		if _, err := next(); err != nil {
			return nil, err
		}
		return next()
	}

	tests := []struct {
		name  string
		chain *Chain
	}{
		{"single middleware", NewChain(double)},
		{"first of two", NewChain(double, passthrough)},
		{"last of two", NewChain(passthrough, double)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRequestContext(context.Background(), "GET", "/x")
			_, err := tt.chain.Dispatch(rc, okTerminal)
			require.Error(t, err)

			var inv *InvariantViolationError
			assert.True(t, errors.As(err, &inv))
		})
	}
}

func passthrough(rc *RequestContext, next Next) (*ResponseContext, error) {
	return next()
}

func TestChainShortCircuit(t *testing.T) {
	cached := &ResponseContext{Status: 200, Data: "cached"}
	afterRan := false

	chain := NewChain(
		passthrough,
		func(rc *RequestContext, next Next) (*ResponseContext, error) {
			return cached, nil
		},
		func(rc *RequestContext, next Next) (*ResponseContext, error) {
			afterRan = true
			return next()
		},
	)

	rc := NewRequestContext(context.Background(), "GET", "/x")
	terminalCalled := false
	resp, err := chain.Dispatch(rc, func(rc *RequestContext) (*ResponseContext, error) {
		terminalCalled = true
		return okTerminal(rc)
	})

	require.NoError(t, err)
	assert.Same(t, cached, resp)
	assert.False(t, afterRan, "middleware after the short-circuit must not run")
	assert.False(t, terminalCalled, "terminal must not run after a short-circuit")
}

func TestChainMiddlewareErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(
		passthrough,
		func(rc *RequestContext, next Next) (*ResponseContext, error) {
			return nil, boom
		},
	)

	rc := NewRequestContext(context.Background(), "GET", "/x")
	_, err := chain.Dispatch(rc, okTerminal)
	assert.ErrorIs(t, err, boom)
}

func TestChainMutationVisibleDownstream(t *testing.T) {
	chain := NewChain(
		func(rc *RequestContext, next Next) (*ResponseContext, error) {
			rc.Header.Set("X-Auth", "token")
			rc.RetryCount++
			return next()
		},
	)

	rc := NewRequestContext(context.Background(), "GET", "/x")
	var seen string
	var retries int
	_, err := chain.Dispatch(rc, func(rc *RequestContext) (*ResponseContext, error) {
		seen = rc.Header.Get("X-Auth")
		retries = rc.RetryCount
		return okTerminal(rc)
	})

	require.NoError(t, err)
	assert.Equal(t, "token", seen)
	assert.Equal(t, 1, retries)
}

func BenchmarkChainDispatch(b *testing.B) {
	chain := NewChain(passthrough, passthrough, passthrough, passthrough)
	rc := NewRequestContext(context.Background(), "GET", "/bench")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := chain.Dispatch(rc, okTerminal); err != nil {
			b.Fatal(err)
		}
	}
}

func TestChainIndependentDispatchStates(t *testing.T) {
	chain := NewChain(passthrough)

	// Two sequential dispatches through the same chain must not share
	// invocation state.
	for i := 0; i < 2; i++ {
		rc := NewRequestContext(context.Background(), "GET", "/x")
		_, err := chain.Dispatch(rc, okTerminal)
		require.NoError(t, err)
	}
}
