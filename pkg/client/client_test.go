package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restflow/restflow-go/pkg/apierr"
	"github.com/restflow/restflow-go/pkg/pipeline"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","name":"John"}`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/users", WithQueryParam("page", 1))

	require.Nil(t, resp.Err)
	assert.True(t, resp.OK())
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]any{"id": "1", "name": "John"}, resp.Data)

	u, err := As[user](resp)
	require.NoError(t, err)
	assert.Equal(t, user{ID: "1", Name: "John"}, u)
}

func TestClientErrorPayloadExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10001,"message":"not found"}`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/users/999")

	require.NotNil(t, resp.Err)
	assert.False(t, resp.OK())
	assert.Equal(t, 10001, resp.Err.Code)
	assert.Equal(t, "not found", resp.Err.Message)
	assert.Equal(t, apierr.KindServer, resp.Err.Kind)
}

func TestClientErrorPayloadFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/missing")

	require.NotNil(t, resp.Err)
	assert.Equal(t, 404, resp.Err.Code)
	assert.Equal(t, "HTTP 404", resp.Err.Message)
	assert.Equal(t, apierr.KindServer, resp.Err.Kind)
}

func TestClientAbortBeforeIO(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(ctx, "/users")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindAbort, resp.Err.Kind)
	assert.False(t, called.Load(), "no network I/O after a pre-fired cancellation")
}

func TestClientAbortMidFlight(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(ctx, "/slow")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindAbort, resp.Err.Kind)
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/slow", WithCallTimeout(20*time.Millisecond))

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindTimeout, resp.Err.Kind, "deadline on an alive caller context is a timeout, not an abort")
}

func TestClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens anymore

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/users")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindNetwork, resp.Err.Kind)
}

func TestClientPostBodyRoundTrip(t *testing.T) {
	payload := map[string]any{
		"name": "Ada",
		"tags": []any{"x", "y"},
		"prefs": map[string]any{
			"theme": "dark",
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, payload, got)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Post(context.Background(), "/users", payload)

	require.Nil(t, resp.Err)
	assert.Equal(t, 201, resp.Status)
}

func TestClientGetBodyBecomesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body, "GET carries no body")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Execute(context.Background(), http.MethodGet, "/users",
		map[string]any{"limit": 5, "status": "active"})
	require.Nil(t, resp.Err)
}

func TestClientHeaderMerge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "per-call", r.Header.Get("X-Token"))
		assert.Equal(t, "kept", r.Header.Get("X-Default"))
		assert.Empty(t, r.Header.Get("Content-Type"), "bodyless requests drop the default content type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(
		WithBaseURL(server.URL),
		WithHeader("X-Token", "default"),
		WithHeader("X-Default", "kept"),
	)
	resp := c.Get(context.Background(), "/users", WithCallHeader("X-Token", "per-call"))
	require.Nil(t, resp.Err)
}

func TestClientTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/ping")

	require.Nil(t, resp.Err)
	assert.Equal(t, "pong", resp.Data)
}

func TestClientUnknownContentTypeLeftRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x01, 0x02})
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/blob")

	require.Nil(t, resp.Err)
	assert.Equal(t, []byte{0x01, 0x02}, resp.Data)
}

func TestClientMalformedJSONOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{broken`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/bad")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindUnknown, resp.Err.Kind)
}

func TestClientNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	resp := c.Get(context.Background(), "/flaky")

	require.NotNil(t, resp.Err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	retries := make([]int, 0, 3)
	seen := pipeline.Middleware(func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		retries = append(retries, rc.RetryCount)
		return next()
	})

	c := New(
		WithBaseURL(server.URL),
		WithRetry(3, time.Millisecond, 2.0),
		WithMiddleware(seen),
	)
	resp := c.Get(context.Background(), "/flaky")

	require.Nil(t, resp.Err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{0, 1, 2}, retries, "each re-dispatch runs the whole chain with an incremented count")
}

func TestClientNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithRetry(3, time.Millisecond, 2.0))
	resp := c.Get(context.Background(), "/bad")

	require.NotNil(t, resp.Err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientMiddlewarePanicBecomesUnknown(t *testing.T) {
	c := New(
		WithBaseURL("http://127.0.0.1:0"),
		WithMiddleware(func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
			panic("bad middleware")
		}),
	)
	resp := c.Get(context.Background(), "/x")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindUnknown, resp.Err.Kind)
}

func TestClientMiddlewareErrorBecomesUnknown(t *testing.T) {
	c := New(
		WithBaseURL("http://127.0.0.1:0"),
		WithMiddleware(func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
			return nil, io.ErrClosedPipe
		}),
	)
	resp := c.Get(context.Background(), "/x")

	require.NotNil(t, resp.Err)
	assert.Equal(t, apierr.KindUnknown, resp.Err.Kind)
	assert.ErrorIs(t, resp.Err, io.ErrClosedPipe)
}

func TestClientMetaSeededForMiddleware(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var base, reqID any
	c := New(
		WithBaseURL(server.URL),
		WithMiddleware(func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
			base = rc.Meta[pipeline.MetaBaseURL]
			reqID = rc.Meta[pipeline.MetaRequestID]
			return next()
		}),
	)
	resp := c.Get(context.Background(), "/x", WithMeta("tenant", "acme"))

	require.Nil(t, resp.Err)
	assert.Equal(t, server.URL, base)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, "acme", resp.Request.Meta["tenant"])
}

func TestClientPathNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// Trailing slash on the base and missing leading slash on the path
	// must not produce a double or missing separator.
	c := New(WithBaseURL(server.URL + "/"))
	resp := c.Get(context.Background(), "users/1")
	require.Nil(t, resp.Err)
}
