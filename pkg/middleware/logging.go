package middleware

import (
	"time"

	"github.com/restflow/restflow-go/pkg/logging"
	"github.com/restflow/restflow-go/pkg/pipeline"
)

// Logging logs one line per call with method, path, status and duration.
// Install it early in the chain so the recorded duration covers the inner
// middleware as well.
func Logging(logger logging.Logger) pipeline.Middleware {
	if logger == nil {
		logger = logging.NewNop()
	}

	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		start := time.Now()
		resp, err := next()
		elapsed := time.Since(start)

		fields := []logging.Field{
			logging.String("method", rc.Method),
			logging.String("path", rc.Path),
			logging.Duration("duration", elapsed),
		}
		switch {
		case err != nil:
			logger.Error("request failed in middleware", append(fields, logging.ErrorField(err))...)
		case resp != nil && resp.Err != nil:
			logger.Warn("request failed",
				append(fields,
					logging.Int("status", resp.Status),
					logging.ErrorField(resp.Err))...)
		case resp != nil:
			logger.Info("request completed", append(fields, logging.Int("status", resp.Status))...)
		}
		return resp, err
	}
}
