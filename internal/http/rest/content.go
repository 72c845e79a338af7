// Package rest is the screen-facing surface of the gateway. Every
// response reuses the platform's { success, data?, message? } envelope so
// screens parse one shape end to end.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/logctx"
	"github.com/edupress/content_gateway/internal/materialize"
	"github.com/edupress/content_gateway/internal/session"
	"github.com/go-chi/chi/v5"
)

// URLBuilder produces browser-facing viewer URLs for assets.
type URLBuilder interface {
	ViewURL(desc access.AssetDescriptor, token string) string
}

type ContentHandler struct {
	orchestrator *access.Orchestrator
	materializer *materialize.Materializer
	client       URLBuilder
	sessions     session.Store
}

func NewContentHandler(
	orchestrator *access.Orchestrator,
	materializer *materialize.Materializer,
	client URLBuilder,
	sessions session.Store,
) *ContentHandler {
	return &ContentHandler{
		orchestrator: orchestrator,
		materializer: materializer,
		client:       client,
		sessions:     sessions,
	}
}

func (h *ContentHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/v1/content/{kind}/{contentID}", func(r chi.Router) {
		r.Get("/", h.HandleOpenContent)
		r.Post("/download-all", h.HandleDownloadAll)
		r.Post("/assets/{assetID}/download", h.HandleDownload)
		r.Get("/assets/{assetID}/view-url", h.HandleViewURL)
	})

	return r
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type decisionDTO struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

type assetDTO struct {
	AssetID      string `json:"assetId"`
	OriginalName string `json:"originalName"`
	SizeBytes    int64  `json:"sizeBytes"`
	Kind         string `json:"kind"`
}

type openContentDTO struct {
	Decision decisionDTO `json:"decision"`
	Assets   []assetDTO  `json:"assets"`
}

type materializedDTO struct {
	AssetID      string    `json:"assetId"`
	LocalPath    string    `json:"localPath"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

type viewURLDTO struct {
	URL string `json:"url"`
}

type downloadAllDTO struct {
	Downloaded int `json:"downloaded"`
}

// HandleOpenContent resolves entitlement and returns the asset catalog.
// The decision always comes back with HTTP 200; screens branch on its
// kind and reason, not on transport status.
func (h *ContentHandler) HandleOpenContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, ok := h.contentRef(w, r)
	if !ok {
		return
	}

	sess := h.session(r)

	result, err := h.orchestrator.OpenContent(ctx, ref, sess)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	assets := make([]assetDTO, 0, len(result.Assets))
	for _, a := range result.Assets {
		assets = append(assets, assetDTO{
			AssetID:      a.AssetID,
			OriginalName: a.OriginalName,
			SizeBytes:    a.SizeBytes,
			Kind:         string(a.Kind),
		})
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: openContentDTO{
		Decision: decisionDTO{Kind: string(result.Decision.Kind), Reason: string(result.Decision.Reason)},
		Assets:   assets,
	}})
}

// HandleDownload re-resolves entitlement, locates the asset in the
// catalog and materializes it.
func (h *ContentHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, ok := h.contentRef(w, r)
	if !ok {
		return
	}

	sess := h.session(r)

	desc, ok := h.approvedAsset(w, r, ref, sess)
	if !ok {
		return
	}

	mat, err := h.materializer.Download(ctx, ref, *desc, sess)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: materializedDTO{
		AssetID:      mat.AssetID,
		LocalPath:    mat.LocalPath,
		DownloadedAt: mat.DownloadedAt,
	}})
}

// HandleDownloadAll materializes every PDF asset of a content item.
func (h *ContentHandler) HandleDownloadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, ok := h.contentRef(w, r)
	if !ok {
		return
	}

	sess := h.session(r)

	result, err := h.orchestrator.OpenContent(ctx, ref, sess)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	if !result.Decision.Allowed() {
		h.writeDecision(w, result.Decision)

		return
	}

	downloaded, err := h.materializer.DownloadAll(ctx, ref, result.Assets, sess)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: downloadAllDTO{Downloaded: downloaded}})
}

// HandleViewURL returns the in-app viewer URL for an asset, with the
// token as a query parameter since viewers cannot set headers.
func (h *ContentHandler) HandleViewURL(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.contentRef(w, r)
	if !ok {
		return
	}

	sess := h.session(r)

	desc, ok := h.approvedAsset(w, r, ref, sess)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: viewURLDTO{URL: h.client.ViewURL(*desc, sess.Token)}})
}

// approvedAsset runs the full check-then-fetch sequence and picks the
// requested asset out of the catalog.
func (h *ContentHandler) approvedAsset(w http.ResponseWriter, r *http.Request, ref access.ContentRef, sess access.Session) (*access.AssetDescriptor, bool) {
	assetID := chi.URLParam(r, "assetID")

	result, err := h.orchestrator.OpenContent(r.Context(), ref, sess)
	if err != nil {
		h.writeError(w, r, err)

		return nil, false
	}

	if !result.Decision.Allowed() {
		h.writeDecision(w, result.Decision)

		return nil, false
	}

	for i := range result.Assets {
		if result.Assets[i].AssetID == assetID {
			return &result.Assets[i], true
		}
	}

	writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "asset not found"})

	return nil, false
}

func (h *ContentHandler) contentRef(w http.ResponseWriter, r *http.Request) (access.ContentRef, bool) {
	kind, ok := access.ParseContentKind(chi.URLParam(r, "kind"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "unknown content kind"})

		return access.ContentRef{}, false
	}

	contentID := chi.URLParam(r, "contentID")
	if contentID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "missing content id"})

		return access.ContentRef{}, false
	}

	return access.ContentRef{ContentID: contentID, Kind: kind}, true
}

// session builds the request's session: an Authorization bearer plus
// X-User-ID override the stored session so a screen can act for the user
// it is rendering, otherwise the gateway's own store supplies it.
func (h *ContentHandler) session(r *http.Request) access.Session {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		tok := strings.TrimPrefix(authz, "Bearer ")
		if tok != "" && !session.TokenExpired(tok) {
			return access.Session{
				UserID: r.Header.Get("X-User-ID"),
				Token:  tok,
				Role:   r.Header.Get("X-User-Role"),
			}
		}
	}

	if h.sessions == nil {
		return access.Session{}
	}

	sess, err := h.sessions.Current(r.Context())
	if err != nil {
		return access.Session{}
	}

	return sess
}

// writeDecision maps a non-Allowed decision to the status screens expect:
// 401 routes to sign-in, 402 to the purchase/poll affordances, never a
// generic error.
func (h *ContentHandler) writeDecision(w http.ResponseWriter, d access.Decision) {
	status := http.StatusForbidden

	switch d.Reason {
	case access.ReasonAuthRequired:
		status = http.StatusUnauthorized
	case access.ReasonProcessingPayment, access.ReasonNotPurchased:
		status = http.StatusPaymentRequired
	case access.ReasonVerificationFailed:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, envelope{Success: false, Data: decisionDTO{Kind: string(d.Kind), Reason: string(d.Reason)}, Message: decisionMessage(d.Reason)})
}

func (h *ContentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		authErr *access.AuthError
		nfErr   *access.NotFoundError
		permErr *access.PermissionError
		dlErr   *access.DownloadError
	)

	switch {
	case errors.Is(err, access.ErrDownloadInFlight):
		writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "download already in progress"})
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: "sign in to continue"})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: nfErr.Error()})
	case errors.As(err, &permErr):
		writeJSON(w, http.StatusForbidden, envelope{Success: false, Message: "storage permission required"})
	case errors.As(err, &dlErr):
		logger.Error("asset download failed", "err", err)
		writeJSON(w, http.StatusBadGateway, envelope{Success: false, Message: "couldn't download, try again"})
	default:
		logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
	}
}

func decisionMessage(reason access.Reason) string {
	switch reason {
	case access.ReasonAuthRequired:
		return "sign in to continue"
	case access.ReasonNotPurchased:
		return "not purchased yet"
	case access.ReasonProcessingPayment:
		return "payment processing, check back soon"
	case access.ReasonVerificationFailed:
		return "couldn't verify access, try again"
	}

	return ""
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
