package access

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupress/content_gateway/internal/logctx"
	"github.com/edupress/content_gateway/internal/telemetry"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNoEntitlement is returned by ContentAPI.GetEntitlement when the
// backend has no purchase or enrollment record for the pair.
var ErrNoEntitlement = errors.New("no entitlement record")

// ContentAPI is the slice of the backend the resolver consumes.
type ContentAPI interface {
	GetContent(ctx context.Context, ref ContentRef, token string) (*ContentMeta, error)
	GetEntitlement(ctx context.Context, ref ContentRef, sess Session) (*EntitlementRecord, error)
}

// SessionInvalidator evicts stored credentials after the backend rejects
// them. The resolver only triggers it; storage is the store's concern.
type SessionInvalidator interface {
	Clear(ctx context.Context) error
}

const decisionCacheSize = 512

// Resolver decides whether a user may open a content item. It re-verifies
// on every call except for Allowed decisions younger than the configured
// TTL, since purchase state can change between calls (a payment completing
// asynchronously, a refund).
type Resolver struct {
	api       ContentAPI
	sessions  SessionInvalidator
	ttl       time.Duration
	cache     *expirable.LRU[string, Decision]
	telemetry *telemetry.Telemetry
}

// NewResolver creates a resolver. A ttl of zero disables decision caching
// entirely; every call then hits the backend.
func NewResolver(api ContentAPI, sessions SessionInvalidator, ttl time.Duration, tel *telemetry.Telemetry) *Resolver {
	r := &Resolver{
		api:       api,
		sessions:  sessions,
		ttl:       ttl,
		telemetry: tel,
	}

	if ttl > 0 {
		r.cache = expirable.NewLRU[string, Decision](decisionCacheSize, nil, ttl)
	}

	return r
}

// Resolve returns the entitlement decision for (ref, sess).
//
// A non-nil error is returned only when the content item itself does not
// exist; every failure inside the entitlement flow is folded into the
// decision so screens never see raw transport errors.
func (r *Resolver) Resolve(ctx context.Context, ref ContentRef, sess Session) (Decision, error) {
	var d Decision

	err := r.telemetry.InstrumentResolution(ctx, func(ctx context.Context) error {
		var resolveErr error
		d, resolveErr = r.resolve(ctx, ref, sess)

		return resolveErr
	})
	if err == nil && r.telemetry != nil {
		r.telemetry.RecordResolution(string(d.Kind), string(d.Reason))
	}

	return d, err
}

func (r *Resolver) resolve(ctx context.Context, ref ContentRef, sess Session) (Decision, error) {
	logger := logctx.LoggerFromContext(ctx).With("content_id", ref.ContentID, "content_kind", string(ref.Kind))

	if d, ok := r.cached(ref, sess); ok {
		logger.Debug("entitlement decision served from cache")

		if r.telemetry != nil {
			r.telemetry.RecordResolutionCacheHit()
		}

		return d, nil
	}

	meta, err := r.api.GetContent(ctx, ref, sess.Token)
	if err != nil {
		var nfErr *NotFoundError
		if errors.As(err, &nfErr) {
			return Decision{}, err
		}

		return r.classify(ctx, err, logger), nil
	}

	// Free content needs no purchase check, signed in or not.
	if meta.IsFree {
		logger.Debug("content is free, allowing without entitlement lookup")

		d := allowed()
		r.remember(ref, sess, d)

		return d, nil
	}

	if sess.Absent() {
		logger.Debug("paid content requested without a session")

		return denied(ReasonAuthRequired), nil
	}

	rec, err := r.api.GetEntitlement(ctx, ref, sess)
	if err != nil {
		if errors.Is(err, ErrNoEntitlement) {
			return denied(ReasonNotPurchased), nil
		}

		return r.classify(ctx, err, logger), nil
	}

	switch {
	case rec.PurchaseStatus == StatusCompleted && rec.PaymentStatus == StatusCompleted:
		d := allowed()
		r.remember(ref, sess, d)

		return d, nil
	case rec.PurchaseStatus == StatusPending || rec.PaymentStatus == StatusPending:
		return pending(ReasonProcessingPayment), nil
	default:
		// failed or partial records all read as not purchased.
		return denied(ReasonNotPurchased), nil
	}
}

// Invalidate drops a cached decision for (ref, sess). Callers hook it to
// payment-completion or refund events so a kept-alive screen does not
// trust a stale Allowed for its whole lifetime.
func (r *Resolver) Invalidate(ref ContentRef, sess Session) {
	if r.cache != nil {
		r.cache.Remove(cacheKey(ref, sess))
	}
}

// classify maps a backend failure into a decision. A 401 clears the
// session store before surfacing AuthRequired; anything else reads as
// VerificationFailed, never as a silent allow.
func (r *Resolver) classify(ctx context.Context, err error, logger *slog.Logger) Decision {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if r.sessions != nil {
			if cerr := r.sessions.Clear(ctx); cerr != nil {
				logger.Error("failed to clear session after auth rejection", "err", cerr)
			}
		}

		return denied(ReasonAuthRequired)
	}

	logger.Error("entitlement verification failed", "err", err)

	return denied(ReasonVerificationFailed)
}

func (r *Resolver) cached(ref ContentRef, sess Session) (Decision, bool) {
	if r.cache == nil {
		return Decision{}, false
	}

	return r.cache.Get(cacheKey(ref, sess))
}

// remember caches Allowed decisions only. Denials and pendings are cheap
// to recompute and must pick up purchase-state changes immediately.
func (r *Resolver) remember(ref ContentRef, sess Session, d Decision) {
	if r.cache == nil || !d.Allowed() {
		return
	}

	r.cache.Add(cacheKey(ref, sess), d)
}

// cacheKey includes a token digest so a logout/login naturally misses the
// previous session's entries.
func cacheKey(ref ContentRef, sess Session) string {
	tok := sha1.Sum([]byte(sess.Token))

	return fmt.Sprintf("%s|%s|%s|%s", sess.UserID, ref.Kind, ref.ContentID, hex.EncodeToString(tok[:]))
}
