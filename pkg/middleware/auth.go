package middleware

import (
	"errors"

	"github.com/restflow/restflow-go/pkg/pipeline"
)

// TokenSource yields the current credential for an outbound call. It is
// invoked once per dispatch, so rotating credentials take effect without
// rebuilding the client.
type TokenSource func(rc *pipeline.RequestContext) (string, error)

// StaticToken returns a TokenSource for a fixed credential.
func StaticToken(token string) TokenSource {
	return func(*pipeline.RequestContext) (string, error) {
		return token, nil
	}
}

// BearerAuth sets an Authorization bearer header on every call. A source
// error fails the dispatch before any network I/O; the pipeline surfaces it
// as an unknown-kind error.
func BearerAuth(source TokenSource) pipeline.Middleware {
	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		token, err := source(rc)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, errors.New("bearer auth: empty token")
		}
		rc.Header.Set("Authorization", "Bearer "+token)
		return next()
	}
}

// APIKeyAuth sets a key credential in the named header, e.g. "X-API-Key".
func APIKeyAuth(header, key string) pipeline.Middleware {
	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		if key != "" {
			rc.Header.Set(header, key)
		}
		return next()
	}
}
