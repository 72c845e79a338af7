// Package catalog fetches the asset list of an entitlement-approved
// content item.
package catalog

import (
	"context"
	"errors"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/logctx"
)

// FileAPI is the backend slice the catalog consumes.
type FileAPI interface {
	ListFiles(ctx context.Context, ref access.ContentRef, token string) ([]access.AssetDescriptor, error)
}

// Catalog lists assets for content the caller has already resolved as
// Allowed. It trusts that prior check and does not re-verify, so the same
// list render costs one round-trip, not two.
type Catalog struct {
	api      FileAPI
	sessions access.SessionInvalidator
}

func NewCatalog(api FileAPI, sessions access.SessionInvalidator) *Catalog {
	return &Catalog{
		api:      api,
		sessions: sessions,
	}
}

// List returns the content item's assets in server order. An empty slice
// is a valid state (files still being uploaded), not an error. A token
// rejection clears the session store before surfacing.
func (c *Catalog) List(ctx context.Context, ref access.ContentRef, sess access.Session) ([]access.AssetDescriptor, error) {
	logger := logctx.LoggerFromContext(ctx).With("content_id", ref.ContentID, "content_kind", string(ref.Kind))

	assets, err := c.api.ListFiles(ctx, ref, sess.Token)
	if err != nil {
		var authErr *access.AuthError
		if errors.As(err, &authErr) {
			if c.sessions != nil {
				if cerr := c.sessions.Clear(ctx); cerr != nil {
					logger.Error("failed to clear session after catalog auth rejection", "err", cerr)
				}
			}
		}

		return nil, err
	}

	if assets == nil {
		assets = []access.AssetDescriptor{}
	}

	logger.Debug("asset catalog fetched", "asset_count", len(assets))

	return assets, nil
}

var _ access.AssetLister = (*Catalog)(nil)
