// Package access holds the entitlement and asset domain of the content
// gateway: who may open a content item, and which assets it carries.
package access

import (
	"strings"
	"time"
)

// ContentKind identifies the two content families of the platform.
type ContentKind string

const (
	KindCourse ContentKind = "course"
	KindNotes  ContentKind = "notes"
)

// ParseContentKind maps a path segment to a ContentKind.
func ParseContentKind(s string) (ContentKind, bool) {
	switch ContentKind(strings.ToLower(s)) {
	case KindCourse:
		return KindCourse, true
	case KindNotes:
		return KindNotes, true
	}

	return "", false
}

// ContentRef identifies a single content item. Callers build it from
// navigation parameters and never mutate it afterwards.
type ContentRef struct {
	ContentID string
	Kind      ContentKind
}

// Session is the signed-in user as seen by the core. The core only reads
// it; the session store owns storage and eviction.
type Session struct {
	UserID string
	Token  string
	Role   string
}

// Absent reports whether the session is missing or unusable. A session
// with any empty field must be treated as absent.
func (s Session) Absent() bool {
	return s.UserID == "" || s.Token == ""
}

// EntitlementStatus is a purchase or payment state as reported by the
// backend.
type EntitlementStatus string

const (
	StatusAbsent    EntitlementStatus = ""
	StatusPending   EntitlementStatus = "pending"
	StatusCompleted EntitlementStatus = "completed"
	StatusFailed    EntitlementStatus = "failed"
)

// EntitlementRecord is the server-sourced purchase/payment state for one
// (user, content) pair. Fetched fresh per resolution, never persisted.
type EntitlementRecord struct {
	ContentID      string
	IsFree         bool
	PurchaseStatus EntitlementStatus
	PaymentStatus  EntitlementStatus
}

// ContentMeta is the content item's own metadata, enough to tell free
// from paid content.
type ContentMeta struct {
	ContentID string
	Title     string
	IsFree    bool
}

// DecisionKind is the outcome family of an entitlement resolution.
type DecisionKind string

const (
	DecisionAllowed DecisionKind = "allowed"
	DecisionDenied  DecisionKind = "denied"
	DecisionPending DecisionKind = "pending"
)

// Reason is the closed set of denial/pending reasons. Screens map each
// reason to a distinct affordance (sign-in, purchase flow, retry, poll),
// so a NotPurchased must never be presented as a transient failure.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonAuthRequired       Reason = "auth_required"
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonNotPurchased       Reason = "not_purchased"
	ReasonProcessingPayment  Reason = "processing_payment"
)

// Decision is the result of one entitlement resolution. Transient,
// created per call.
type Decision struct {
	Kind   DecisionKind
	Reason Reason
}

// Allowed reports whether assets may be fetched under this decision.
func (d Decision) Allowed() bool {
	return d.Kind == DecisionAllowed
}

func allowed() Decision {
	return Decision{Kind: DecisionAllowed}
}

func denied(reason Reason) Decision {
	return Decision{Kind: DecisionDenied, Reason: reason}
}

func pending(reason Reason) Decision {
	return Decision{Kind: DecisionPending, Reason: reason}
}

// AssetKind distinguishes downloadable files from stored video links.
type AssetKind string

const (
	AssetPdf       AssetKind = "pdf"
	AssetVideoLink AssetKind = "video_link"
)

// AssetDescriptor describes one viewable or downloadable asset of a
// content item, in the order the server returned it.
type AssetDescriptor struct {
	AssetID      string
	OriginalName string
	SizeBytes    int64
	Kind         AssetKind
	RemoteRef    string
}

// MaterializedAsset is a successfully downloaded asset on local storage.
// Repeat downloads overwrite it; no dedup is promised.
type MaterializedAsset struct {
	AssetID      string
	LocalPath    string
	DownloadedAt time.Time
}
