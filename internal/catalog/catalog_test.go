package catalog

import (
	"context"
	"testing"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFileAPI struct {
	assets    []access.AssetDescriptor
	err       error
	lastToken string
}

func (f *fakeFileAPI) ListFiles(_ context.Context, _ access.ContentRef, token string) ([]access.AssetDescriptor, error) {
	f.lastToken = token

	return f.assets, f.err
}

type fakeInvalidator struct {
	clearCalls int
}

func (f *fakeInvalidator) Clear(_ context.Context) error {
	f.clearCalls++

	return nil
}

var notesRef = access.ContentRef{ContentID: "notes-9", Kind: access.KindNotes}

func TestList_PreservesServerOrder(t *testing.T) {
	api := &fakeFileAPI{assets: []access.AssetDescriptor{
		{AssetID: "file-2", OriginalName: "b.pdf", Kind: access.AssetPdf},
		{AssetID: "file-1", OriginalName: "a.pdf", Kind: access.AssetPdf},
		{AssetID: "file-3", OriginalName: "intro", Kind: access.AssetVideoLink},
	}}
	c := NewCatalog(api, &fakeInvalidator{})

	assets, err := c.List(context.Background(), notesRef, access.Session{UserID: "u", Token: "tok"})

	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "file-2", assets[0].AssetID)
	assert.Equal(t, "file-1", assets[1].AssetID)
	assert.Equal(t, "file-3", assets[2].AssetID)
	assert.Equal(t, "tok", api.lastToken)
}

func TestList_EmptyCatalogIsNotAnError(t *testing.T) {
	c := NewCatalog(&fakeFileAPI{assets: nil}, &fakeInvalidator{})

	assets, err := c.List(context.Background(), notesRef, access.Session{})

	require.NoError(t, err)
	assert.NotNil(t, assets)
	assert.Empty(t, assets)
}

func TestList_AuthRejectionClearsSession(t *testing.T) {
	sessions := &fakeInvalidator{}
	c := NewCatalog(&fakeFileAPI{err: &access.AuthError{Operation: "list_files"}}, sessions)

	_, err := c.List(context.Background(), notesRef, access.Session{UserID: "u", Token: "stale"})

	var authErr *access.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, sessions.clearCalls)
}

func TestList_TransportFailureDoesNotClearSession(t *testing.T) {
	sessions := &fakeInvalidator{}
	c := NewCatalog(&fakeFileAPI{err: &access.TransportError{Operation: "list_files", StatusCode: 502}}, sessions)

	_, err := c.List(context.Background(), notesRef, access.Session{UserID: "u", Token: "tok"})

	require.Error(t, err)
	assert.Equal(t, 0, sessions.clearCalls)
}
