// Package middleware provides ready-made pipeline middleware for
// cross-cutting concerns: response caching, request deduplication, request
// logging and request-id propagation.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/restflow/restflow-go/pkg/pipeline"
)

// cacheEntry is a snapshot of a completed response. The raw network handle
// is deliberately not retained.
type cacheEntry struct {
	status    int
	data      any
	expiresAt time.Time
}

// Cache returns a TTL response-cache middleware for GET/HEAD calls. A cache
// hit short-circuits the chain: nothing below this middleware runs. The
// store is scoped to the returned middleware value, so independently
// configured clients never share entries.
func Cache(ttl time.Duration) pipeline.Middleware {
	var mu sync.Mutex
	store := make(map[string]cacheEntry)

	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		if rc.Method != "GET" && rc.Method != "HEAD" {
			return next()
		}

		key := CacheKey(rc)
		now := time.Now()

		mu.Lock()
		entry, ok := store[key]
		if ok && now.Before(entry.expiresAt) {
			mu.Unlock()
			return &pipeline.ResponseContext{
				Request: rc,
				Status:  entry.status,
				Data:    entry.data,
			}, nil
		}
		if ok {
			delete(store, key)
		}
		mu.Unlock()

		resp, err := next()
		if err == nil && resp != nil && resp.OK() {
			mu.Lock()
			store[key] = cacheEntry{
				status:    resp.Status,
				data:      resp.Data,
				expiresAt: now.Add(ttl),
			}
			mu.Unlock()
		}
		return resp, err
	}
}

// CacheKey canonicalizes (method, path, query, body) into a stable key.
func CacheKey(rc *pipeline.RequestContext) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", rc.Method, rc.Path)
	if len(rc.Query) > 0 {
		if data, err := json.Marshal(rc.Query); err == nil {
			h.Write(data)
		}
	}
	h.Write([]byte{'|'})
	if rc.Body != nil {
		if data, err := json.Marshal(rc.Body); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
