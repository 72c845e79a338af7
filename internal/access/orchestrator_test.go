package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	assets  []AssetDescriptor
	err     error
	calls   int
	lastRef ContentRef
}

func (f *fakeLister) List(_ context.Context, ref ContentRef, _ Session) ([]AssetDescriptor, error) {
	f.calls++
	f.lastRef = ref

	return f.assets, f.err
}

func TestOpenContent_AllowedFetchesAssets(t *testing.T) {
	api := &fakeContentAPI{meta: &ContentMeta{ContentID: "course-1", IsFree: true}}
	lister := &fakeLister{assets: []AssetDescriptor{
		{AssetID: "file-1", OriginalName: "chapter1.pdf", Kind: AssetPdf},
		{AssetID: "file-2", OriginalName: "lecture", Kind: AssetVideoLink, RemoteRef: "https://videos.example.com/lecture"},
	}}
	o := NewOrchestrator(NewResolver(api, &fakeInvalidator{}, 0, nil), lister)

	result, err := o.OpenContent(context.Background(), courseRef, Session{})

	require.NoError(t, err)
	assert.True(t, result.Decision.Allowed())
	require.Len(t, result.Assets, 2)
	assert.Equal(t, "chapter1.pdf", result.Assets[0].OriginalName)
	assert.Equal(t, courseRef, lister.lastRef)
}

func TestOpenContent_DeniedShortCircuits(t *testing.T) {
	tests := []struct {
		name       string
		sess       Session
		record     *EntitlementRecord
		recordErr  error
		wantKind   DecisionKind
		wantReason Reason
	}{
		{
			name:       "paid content without session",
			sess:       Session{},
			wantKind:   DecisionDenied,
			wantReason: ReasonAuthRequired,
		},
		{
			name:       "signed in but not purchased",
			sess:       userSess,
			recordErr:  ErrNoEntitlement,
			wantKind:   DecisionDenied,
			wantReason: ReasonNotPurchased,
		},
		{
			name:       "payment still processing",
			sess:       userSess,
			record:     &EntitlementRecord{PurchaseStatus: StatusCompleted, PaymentStatus: StatusPending},
			wantKind:   DecisionPending,
			wantReason: ReasonProcessingPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeContentAPI{
				meta:      &ContentMeta{ContentID: "course-1", IsFree: false},
				record:    tt.record,
				recordErr: tt.recordErr,
			}
			lister := &fakeLister{assets: []AssetDescriptor{{AssetID: "file-1"}}}
			o := NewOrchestrator(NewResolver(api, &fakeInvalidator{}, 0, nil), lister)

			result, err := o.OpenContent(context.Background(), courseRef, tt.sess)

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, result.Decision.Kind)
			assert.Equal(t, tt.wantReason, result.Decision.Reason)
			assert.Empty(t, result.Assets)
			assert.Equal(t, 0, lister.calls, "catalog must not be fetched when access is not granted")
		})
	}
}

func TestOpenContent_CatalogFailurePropagates(t *testing.T) {
	api := &fakeContentAPI{meta: &ContentMeta{ContentID: "course-1", IsFree: true}}
	listErr := &TransportError{Operation: "list_files", StatusCode: 500, Message: "boom"}
	o := NewOrchestrator(NewResolver(api, &fakeInvalidator{}, 0, nil), &fakeLister{err: listErr})

	_, err := o.OpenContent(context.Background(), courseRef, Session{})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "list_files", tErr.Operation)
}

func TestOpenContent_ContentNotFound(t *testing.T) {
	api := &fakeContentAPI{metaErr: &NotFoundError{Resource: "content", ID: "course-1"}}
	lister := &fakeLister{}
	o := NewOrchestrator(NewResolver(api, &fakeInvalidator{}, 0, nil), lister)

	_, err := o.OpenContent(context.Background(), courseRef, userSess)

	var nfErr *NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, 0, lister.calls)
}
