package middleware

import (
	"golang.org/x/sync/singleflight"

	"github.com/restflow/restflow-go/pkg/pipeline"
)

// Dedup collapses concurrent identical GET/HEAD calls into a single network
// flight. Followers receive a shallow copy of the winner's response bound to
// their own request context; the winner's chain below this middleware runs
// exactly once per flight.
func Dedup() pipeline.Middleware {
	var group singleflight.Group

	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		if rc.Method != "GET" && rc.Method != "HEAD" {
			return next()
		}

		key := CacheKey(rc)
		v, err, shared := group.Do(key, func() (any, error) {
			return next()
		})
		if err != nil {
			return nil, err
		}

		resp, ok := v.(*pipeline.ResponseContext)
		if !ok || resp == nil {
			return nil, err
		}
		if shared && resp.Request != rc {
			dup := *resp
			dup.Request = rc
			return &dup, nil
		}
		return resp, nil
	}
}
