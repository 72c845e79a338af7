// Package platform is the REST client for the education platform backend.
// All responses follow the { success, data?, message? } envelope; a 200
// with success=false is an application-level failure, distinct from
// transport failure.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type contentPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"` // "free" or "paid"
	IsFree   bool   `json:"isFree"`
}

type entitlementPayload struct {
	ContentID      string `json:"contentId"`
	IsFree         bool   `json:"isFree"`
	PurchaseStatus string `json:"purchaseStatus"`
	PaymentStatus  string `json:"paymentStatus"`
}

type filePayload struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Kind         string `json:"kind"` // "pdf" or "video"
	VideoURL     string `json:"videoUrl"`
}

// kindPath maps a content kind to its URL segment.
func kindPath(kind access.ContentKind) string {
	if kind == access.KindCourse {
		return "courses"
	}

	return "notes"
}

// entitlementPath maps a content kind to its entitlement-check endpoint.
// Courses are purchased, notes batches are enrolled.
func entitlementPath(kind access.ContentKind, contentID string) string {
	if kind == access.KindCourse {
		return "/purchases/check/" + contentID
	}

	return "/enrollments/check/" + contentID
}

// GetContent fetches the content item's own metadata, including the
// free/paid flag. The token is optional; free-content metadata is public.
func (c *Client) GetContent(ctx context.Context, ref access.ContentRef, token string) (*access.ContentMeta, error) {
	path := fmt.Sprintf("/%s/%s", kindPath(ref.Kind), ref.ContentID)

	var payload contentPayload
	if err := c.getJSON(ctx, "content metadata", path, token, &payload); err != nil {
		var nfErr *access.NotFoundError
		if errors.As(err, &nfErr) {
			return nil, &access.NotFoundError{Resource: "content", ID: ref.ContentID, Err: nfErr.Err}
		}

		return nil, err
	}

	return &access.ContentMeta{
		ContentID: payload.ID,
		Title:     payload.Title,
		IsFree:    payload.IsFree || strings.EqualFold(payload.Category, "free"),
	}, nil
}

// GetEntitlement fetches the purchase/enrollment record scoped to the
// session's user. Returns access.ErrNoEntitlement when the backend has no
// record for the pair.
func (c *Client) GetEntitlement(ctx context.Context, ref access.ContentRef, sess access.Session) (*access.EntitlementRecord, error) {
	var payload entitlementPayload

	err := c.getJSON(ctx, "entitlement check", entitlementPath(ref.Kind, ref.ContentID), sess.Token, &payload)
	if err != nil {
		var nfErr *access.NotFoundError
		if errors.As(err, &nfErr) {
			return nil, access.ErrNoEntitlement
		}

		return nil, err
	}

	if payload.ContentID == "" && payload.PurchaseStatus == "" && payload.PaymentStatus == "" {
		// 200 with an empty record reads the same as no record.
		return nil, access.ErrNoEntitlement
	}

	return &access.EntitlementRecord{
		ContentID:      payload.ContentID,
		IsFree:         payload.IsFree,
		PurchaseStatus: access.EntitlementStatus(payload.PurchaseStatus),
		PaymentStatus:  access.EntitlementStatus(payload.PaymentStatus),
	}, nil
}

// ListFiles fetches the asset catalog for a content item, preserving the
// server's order. An empty catalog is a valid state, not an error.
func (c *Client) ListFiles(ctx context.Context, ref access.ContentRef, token string) ([]access.AssetDescriptor, error) {
	basePath := fmt.Sprintf("/%s/%s/files", kindPath(ref.Kind), ref.ContentID)

	var payload []filePayload
	if err := c.getJSON(ctx, "asset catalog", basePath, token, &payload); err != nil {
		var nfErr *access.NotFoundError
		if errors.As(err, &nfErr) {
			return nil, &access.NotFoundError{Resource: "asset catalog", ID: ref.ContentID, Err: nfErr.Err}
		}

		return nil, err
	}

	assets := make([]access.AssetDescriptor, 0, len(payload))

	for _, f := range payload {
		desc := access.AssetDescriptor{
			AssetID:      f.ID,
			OriginalName: f.OriginalName,
			SizeBytes:    f.Size,
		}

		if strings.EqualFold(f.Kind, "video") {
			desc.Kind = access.AssetVideoLink
			desc.RemoteRef = f.VideoURL
		} else {
			desc.Kind = access.AssetPdf
			desc.RemoteRef = basePath + "/" + f.ID
		}

		assets = append(assets, desc)
	}

	return assets, nil
}

// FetchAsset performs the authenticated binary download for a PDF asset.
// The returned reader streams the body; callers own closing it.
func (c *Client) FetchAsset(ctx context.Context, desc access.AssetDescriptor, token string) (io.ReadCloser, int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("asset_id", desc.AssetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+desc.RemoteRef+"/download", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create download request: %w", err)
	}

	client := c.httpClient
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = oauth2.NewClient(ctx, src)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "asset download request failed", "err", err)

		return nil, 0, &access.DownloadError{AssetID: desc.AssetID, Message: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, 0, &access.AuthError{Operation: "asset download"}
		case http.StatusNotFound:
			return nil, 0, &access.NotFoundError{Resource: "asset", ID: desc.AssetID}
		default:
			return nil, 0, &access.DownloadError{
				AssetID:    desc.AssetID,
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
			}
		}
	}

	return resp.Body, resp.ContentLength, nil
}

// ViewURL builds the in-app viewer URL for an asset. The viewer cannot
// set headers, so the token travels as a query parameter.
func (c *Client) ViewURL(desc access.AssetDescriptor, token string) string {
	if desc.Kind == access.AssetVideoLink {
		return desc.RemoteRef
	}

	u := c.BaseURL + desc.RemoteRef + "/view"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}

	return u
}

// getJSON performs an authenticated GET, unwraps the response envelope and
// decodes its data into out.
func (c *Client) getJSON(ctx context.Context, operation, path, token string, out any) error {
	logger := logctx.LoggerFromContext(ctx).With("operation", operation, "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "backend request failed", "err", err)

		return &access.TransportError{Operation: operation, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &access.AuthError{Operation: operation}
	case resp.StatusCode == http.StatusNotFound:
		return &access.NotFoundError{Resource: operation, ID: path}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		logger.ErrorContext(ctx, "backend returned non-200", "status", resp.StatusCode)

		return &access.TransportError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &access.TransportError{Operation: operation, Message: "malformed response body", Err: err}
	}

	if !env.Success {
		return &access.APIError{Operation: operation, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &access.TransportError{Operation: operation, Message: "malformed response data", Err: err}
		}
	}

	return nil
}
