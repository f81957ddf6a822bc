package middleware

import (
	"github.com/restflow/restflow-go/pkg/pipeline"
)

// RequestIDHeader is the header carrying the per-call request id.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the request id seeded in the call metadata to the
// outbound request headers. It is a separate middleware rather than a
// client default so that identical inputs build identical requests unless
// propagation is explicitly enabled.
func RequestID() pipeline.Middleware {
	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		if id, ok := rc.Meta[pipeline.MetaRequestID].(string); ok && id != "" {
			rc.Header.Set(RequestIDHeader, id)
		}
		return next()
	}
}
