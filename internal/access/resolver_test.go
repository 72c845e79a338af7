package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContentAPI struct {
	meta    *ContentMeta
	metaErr error

	record    *EntitlementRecord
	recordErr error

	contentCalls     int
	entitlementCalls int
}

func (f *fakeContentAPI) GetContent(_ context.Context, _ ContentRef, _ string) (*ContentMeta, error) {
	f.contentCalls++
	if f.metaErr != nil {
		return nil, f.metaErr
	}

	return f.meta, nil
}

func (f *fakeContentAPI) GetEntitlement(_ context.Context, _ ContentRef, _ Session) (*EntitlementRecord, error) {
	f.entitlementCalls++
	if f.recordErr != nil {
		return nil, f.recordErr
	}

	return f.record, nil
}

type fakeInvalidator struct {
	clearCalls int
	clearErr   error
}

func (f *fakeInvalidator) Clear(_ context.Context) error {
	f.clearCalls++

	return f.clearErr
}

var (
	courseRef = ContentRef{ContentID: "course-1", Kind: KindCourse}
	userSess  = Session{UserID: "user-1", Token: "tok-abc", Role: "student"}
)

func TestResolve_FreeContentAllowedWithoutSession(t *testing.T) {
	api := &fakeContentAPI{meta: &ContentMeta{ContentID: "course-1", IsFree: true}}
	r := NewResolver(api, &fakeInvalidator{}, 0, nil)

	d, err := r.Resolve(context.Background(), courseRef, Session{})

	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, ReasonNone, d.Reason)
	assert.Equal(t, 0, api.entitlementCalls, "free content must not trigger an entitlement lookup")
}

func TestResolve_PaidContentWithoutSession(t *testing.T) {
	api := &fakeContentAPI{meta: &ContentMeta{ContentID: "course-1", IsFree: false}}
	r := NewResolver(api, &fakeInvalidator{}, 0, nil)

	d, err := r.Resolve(context.Background(), courseRef, Session{})

	require.NoError(t, err)
	assert.Equal(t, DecisionDenied, d.Kind)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
	assert.Equal(t, 0, api.entitlementCalls, "absent session must short-circuit before the entitlement lookup")
}

func TestResolve_PartialSessionTreatedAsAbsent(t *testing.T) {
	api := &fakeContentAPI{meta: &ContentMeta{ContentID: "course-1", IsFree: false}}
	r := NewResolver(api, &fakeInvalidator{}, 0, nil)

	d, err := r.Resolve(context.Background(), courseRef, Session{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, DecisionDenied, d.Kind)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
}

func TestResolve_EntitlementStates(t *testing.T) {
	tests := []struct {
		name       string
		record     *EntitlementRecord
		recordErr  error
		wantKind   DecisionKind
		wantReason Reason
	}{
		{
			name:     "purchase and payment completed",
			record:   &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted},
			wantKind: DecisionAllowed,
		},
		{
			name:       "purchase pending",
			record:     &EntitlementRecord{PurchaseStatus: StatusPending, PaymentStatus: StatusCompleted},
			wantKind:   DecisionPending,
			wantReason: ReasonProcessingPayment,
		},
		{
			name:       "payment pending",
			record:     &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusPending},
			wantKind:   DecisionPending,
			wantReason: ReasonProcessingPayment,
		},
		{
			name:       "payment failed",
			record:     &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusFailed},
			wantKind:   DecisionDenied,
			wantReason: ReasonNotPurchased,
		},
		{
			name:       "purchase completed but payment absent",
			record:     &EntitlementRecord{PurchaseStatus: StatusCompleted},
			wantKind:   DecisionDenied,
			wantReason: ReasonNotPurchased,
		},
		{
			name:       "no record at all",
			recordErr:  ErrNoEntitlement,
			wantKind:   DecisionDenied,
			wantReason: ReasonNotPurchased,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeContentAPI{
				meta:      &ContentMeta{ContentID: "course-1", IsFree: false},
				record:    tt.record,
				recordErr: tt.recordErr,
			}
			r := NewResolver(api, &fakeInvalidator{}, 0, nil)

			d, err := r.Resolve(context.Background(), courseRef, userSess)

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestResolve_ContentNotFoundSurfacesError(t *testing.T) {
	api := &fakeContentAPI{metaErr: &NotFoundError{Resource: "content", ID: "course-1"}}
	r := NewResolver(api, &fakeInvalidator{}, 0, nil)

	_, err := r.Resolve(context.Background(), courseRef, userSess)

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "course-1", nfErr.ID)
}

func TestResolve_AuthRejectionClearsSessionOnce(t *testing.T) {
	api := &fakeContentAPI{
		meta:      &ContentMeta{ContentID: "course-1", IsFree: false},
		recordErr: &AuthError{Operation: "get_entitlement"},
	}
	sessions := &fakeInvalidator{}
	r := NewResolver(api, sessions, 0, nil)

	d, err := r.Resolve(context.Background(), courseRef, userSess)

	require.NoError(t, err)
	assert.Equal(t, DecisionDenied, d.Kind)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
	assert.Equal(t, 1, sessions.clearCalls)
}

func TestResolve_AuthRejectionOnContentFetch(t *testing.T) {
	api := &fakeContentAPI{metaErr: &AuthError{Operation: "get_content"}}
	sessions := &fakeInvalidator{}
	r := NewResolver(api, sessions, 0, nil)

	d, err := r.Resolve(context.Background(), courseRef, userSess)

	require.NoError(t, err)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
	assert.Equal(t, 1, sessions.clearCalls)
}

func TestResolve_TransportFailureNeverAllows(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "server error",
			err:  &TransportError{Operation: "get_entitlement", StatusCode: 503, Message: "unavailable"},
		},
		{
			name: "connection failure",
			err:  &TransportError{Operation: "get_entitlement", Message: "connection refused", Err: errors.New("dial tcp: connection refused")},
		},
		{
			name: "backend envelope rejection",
			err:  &APIError{Operation: "get_entitlement", Message: "course archived"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeContentAPI{
				meta:      &ContentMeta{ContentID: "course-1", IsFree: false},
				recordErr: tt.err,
			}
			r := NewResolver(api, &fakeInvalidator{}, 0, nil)

			d, err := r.Resolve(context.Background(), courseRef, userSess)

			require.NoError(t, err)
			assert.Equal(t, DecisionDenied, d.Kind)
			assert.Equal(t, ReasonVerificationFailed, d.Reason)
		})
	}
}

func TestResolve_CachesAllowedDecisions(t *testing.T) {
	api := &fakeContentAPI{
		meta:   &ContentMeta{ContentID: "course-1", IsFree: false},
		record: &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted},
	}
	r := NewResolver(api, &fakeInvalidator{}, time.Minute, nil)

	d1, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)
	require.True(t, d1.Allowed())

	d2, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)
	assert.True(t, d2.Allowed())

	assert.Equal(t, 1, api.contentCalls, "second resolution should be served from cache")
	assert.Equal(t, 1, api.entitlementCalls)
}

func TestResolve_DenialsAreNotCached(t *testing.T) {
	api := &fakeContentAPI{
		meta:      &ContentMeta{ContentID: "course-1", IsFree: false},
		recordErr: ErrNoEntitlement,
	}
	r := NewResolver(api, &fakeInvalidator{}, time.Minute, nil)

	_, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)

	// The purchase completes between calls.
	api.recordErr = nil
	api.record = &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted}

	d, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)
	assert.True(t, d.Allowed(), "a denied decision must not mask a completed purchase")
}

func TestResolve_CacheMissesAcrossSessions(t *testing.T) {
	api := &fakeContentAPI{
		meta:   &ContentMeta{ContentID: "course-1", IsFree: false},
		record: &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted},
	}
	r := NewResolver(api, &fakeInvalidator{}, time.Minute, nil)

	_, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)

	other := Session{UserID: "user-2", Token: "tok-other"}
	_, err = r.Resolve(context.Background(), courseRef, other)
	require.NoError(t, err)

	assert.Equal(t, 2, api.contentCalls, "another user's session must not hit the first user's cache entry")
}

func TestResolve_InvalidateDropsCacheEntry(t *testing.T) {
	api := &fakeContentAPI{
		meta:   &ContentMeta{ContentID: "course-1", IsFree: false},
		record: &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted},
	}
	r := NewResolver(api, &fakeInvalidator{}, time.Minute, nil)

	_, err := r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)

	r.Invalidate(courseRef, userSess)

	_, err = r.Resolve(context.Background(), courseRef, userSess)
	require.NoError(t, err)

	assert.Equal(t, 2, api.contentCalls, "invalidation should force a fresh backend round-trip")
}

func TestResolve_ZeroTTLDisablesCaching(t *testing.T) {
	api := &fakeContentAPI{
		meta:   &ContentMeta{ContentID: "course-1", IsFree: false},
		record: &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusCompleted},
	}
	r := NewResolver(api, &fakeInvalidator{}, 0, nil)

	for i := 0; i < 3; i++ {
		d, err := r.Resolve(context.Background(), courseRef, userSess)
		require.NoError(t, err)
		require.True(t, d.Allowed())
	}

	assert.Equal(t, 3, api.contentCalls)
}
