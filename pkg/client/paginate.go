package client

import (
	"context"

	"github.com/restflow/restflow-go/pkg/apierr"
	"github.com/restflow/restflow-go/pkg/pipeline"
)

const (
	// DefaultPageLimit is the page size used when none is configured.
	DefaultPageLimit = 50

	// MaxPageLimit caps the configurable page size.
	MaxPageLimit = 200
)

// PaginateConfig shapes how pages are requested and recognized in the
// response payload. Zero values select page/limit query parameters and an
// "items" payload field.
type PaginateConfig struct {
	// PageParam is the query parameter carrying the 1-based page number.
	PageParam string

	// LimitParam is the query parameter carrying the page size.
	LimitParam string

	// Limit is the page size, capped at MaxPageLimit.
	Limit int

	// ItemsField names the payload field holding the page's items when the
	// payload is an object. A bare JSON array payload is used directly.
	ItemsField string

	// MaxPages bounds the number of fetched pages; zero means unbounded.
	MaxPages int
}

func (cfg *PaginateConfig) applyDefaults() {
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "limit"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultPageLimit
	}
	if cfg.Limit > MaxPageLimit {
		cfg.Limit = MaxPageLimit
	}
	if cfg.ItemsField == "" {
		cfg.ItemsField = "items"
	}
}

// Page is one fetched page of a paginated listing.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Items holds the decoded page items.
	Items []any

	// Response is the underlying response context for header access.
	Response *pipeline.ResponseContext
}

// ForEachPage fetches consecutive pages of path and invokes fn per page
// until fn returns false, a page comes back short, or the page budget is
// exhausted. The first failing request stops the walk and its error is
// returned.
func (c *Client) ForEachPage(ctx context.Context, path string, cfg PaginateConfig, fn func(Page) bool, opts ...CallOption) *apierr.Error {
	cfg.applyDefaults()

	for number := 1; cfg.MaxPages <= 0 || number <= cfg.MaxPages; number++ {
		callOpts := append([]CallOption{
			WithQueryParam(cfg.PageParam, number),
			WithQueryParam(cfg.LimitParam, cfg.Limit),
		}, opts...)

		resp := c.Get(ctx, path, callOpts...)
		if resp.Err != nil {
			return resp.Err
		}

		items := extractItems(resp.Data, cfg.ItemsField)
		if len(items) == 0 {
			return nil
		}
		if !fn(Page{Number: number, Items: items, Response: resp}) {
			return nil
		}
		if len(items) < cfg.Limit {
			return nil
		}
	}
	return nil
}

// CollectPages fetches every page of path and returns the concatenated
// items.
func (c *Client) CollectPages(ctx context.Context, path string, cfg PaginateConfig, opts ...CallOption) ([]any, *apierr.Error) {
	var all []any
	err := c.ForEachPage(ctx, path, cfg, func(p Page) bool {
		all = append(all, p.Items...)
		return true
	}, opts...)
	return all, err
}

func extractItems(payload any, field string) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		if items, ok := v[field].([]any); ok {
			return items
		}
	}
	return nil
}
