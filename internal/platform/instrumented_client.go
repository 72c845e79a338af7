package platform

import (
	"context"
	"io"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/telemetry"
)

// InstrumentedClient wraps Client with telemetry around every backend call.
type InstrumentedClient struct {
	client    *Client
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented platform client.
func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// GetContent fetches content metadata with telemetry.
func (c *InstrumentedClient) GetContent(ctx context.Context, ref access.ContentRef, token string) (*access.ContentMeta, error) {
	var result *access.ContentMeta

	var err error

	instrumentedErr := c.telemetry.InstrumentBackendOperation(ctx, "get_content", func(ctx context.Context) error {
		result, err = c.client.GetContent(ctx, ref, token)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// GetEntitlement fetches the user's entitlement record with telemetry.
func (c *InstrumentedClient) GetEntitlement(ctx context.Context, ref access.ContentRef, sess access.Session) (*access.EntitlementRecord, error) {
	var result *access.EntitlementRecord

	var err error

	instrumentedErr := c.telemetry.InstrumentBackendOperation(ctx, "get_entitlement", func(ctx context.Context) error {
		result, err = c.client.GetEntitlement(ctx, ref, sess)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// ListFiles fetches the asset catalog with telemetry.
func (c *InstrumentedClient) ListFiles(ctx context.Context, ref access.ContentRef, token string) ([]access.AssetDescriptor, error) {
	var result []access.AssetDescriptor

	var err error

	instrumentedErr := c.telemetry.InstrumentBackendOperation(ctx, "list_files", func(ctx context.Context) error {
		result, err = c.client.ListFiles(ctx, ref, token)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// FetchAsset opens an asset byte stream with telemetry.
func (c *InstrumentedClient) FetchAsset(ctx context.Context, desc access.AssetDescriptor, token string) (io.ReadCloser, int64, error) {
	var (
		result io.ReadCloser
		size   int64
	)

	var err error

	instrumentedErr := c.telemetry.InstrumentBackendOperation(ctx, "fetch_asset", func(ctx context.Context) error {
		result, size, err = c.client.FetchAsset(ctx, desc, token)

		return err
	})

	if instrumentedErr != nil {
		return nil, 0, instrumentedErr
	}

	return result, size, nil
}

// ViewURL builds a browser-facing URL. No network call, no instrumentation.
func (c *InstrumentedClient) ViewURL(desc access.AssetDescriptor, token string) string {
	return c.client.ViewURL(desc, token)
}
