package access

import (
	"context"

	"github.com/edupress/content_gateway/internal/logctx"
)

// AssetLister retrieves the asset catalog of an entitlement-approved
// content item. It performs no entitlement checking of its own.
type AssetLister interface {
	List(ctx context.Context, ref ContentRef, sess Session) ([]AssetDescriptor, error)
}

// OpenResult is what a screen gets back for one content item. Assets is
// empty unless the decision is Allowed.
type OpenResult struct {
	Decision Decision
	Assets   []AssetDescriptor
}

// Orchestrator is the single entry point screens call to open a content
// item. It owns the check-then-fetch sequence so entitlement rules live
// in one place instead of drifting per screen.
type Orchestrator struct {
	resolver *Resolver
	catalog  AssetLister
}

func NewOrchestrator(resolver *Resolver, catalog AssetLister) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		catalog:  catalog,
	}
}

// OpenContent resolves entitlement and, on Allowed, fetches the asset
// catalog. Anything but Allowed short-circuits with an empty asset list.
func (o *Orchestrator) OpenContent(ctx context.Context, ref ContentRef, sess Session) (*OpenResult, error) {
	logger := logctx.LoggerFromContext(ctx).With("content_id", ref.ContentID, "content_kind", string(ref.Kind))

	decision, err := o.resolver.Resolve(ctx, ref, sess)
	if err != nil {
		return nil, err
	}

	if !decision.Allowed() {
		logger.Info("content access not granted", "decision", string(decision.Kind), "reason", string(decision.Reason))

		return &OpenResult{Decision: decision, Assets: []AssetDescriptor{}}, nil
	}

	assets, err := o.catalog.List(ctx, ref, sess)
	if err != nil {
		return nil, err
	}

	logger.Debug("content opened", "asset_count", len(assets))

	return &OpenResult{Decision: decision, Assets: assets}, nil
}
