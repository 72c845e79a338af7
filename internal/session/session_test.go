package session

import (
	"context"
	"testing"
	"time"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return token
}

func TestTokenExpired(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{
			name:  "future expiry",
			token: "", // filled below
			want:  false,
		},
		{
			name:  "past expiry",
			token: "",
			want:  true,
		},
		{
			name:  "no exp claim",
			token: "",
			want:  false,
		},
		{
			name:  "opaque non-JWT token",
			token: "plain-api-key-12345",
			want:  false,
		},
		{
			name:  "empty token",
			token: "",
			want:  false,
		},
	}

	tests[0].token = signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	tests[1].token = signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
	tests[2].token = signedToken(t, jwt.MapClaims{"sub": "user-1"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenExpired(tt.token))
		})
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := access.Session{
		UserID: "user-1",
		Token:  signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}),
		Role:   "student",
	}
	require.NoError(t, s.Set(ctx, sess))

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestMemoryStore_EmptyReadsAbsent(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Current(context.Background())

	require.NoError(t, err)
	assert.True(t, got.Absent())
}

func TestMemoryStore_ExpiredTokenReadsAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := access.Session{
		UserID: "user-1",
		Token:  signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()}),
	}
	require.NoError(t, s.Set(ctx, sess))

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.True(t, got.Absent(), "an expired token must read back as no session")
}

func TestMemoryStore_PartialSessionReadsAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, access.Session{UserID: "user-1"}))

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.True(t, got.Absent())
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, access.Session{UserID: "user-1", Token: "opaque-tok"}))
	require.NoError(t, s.Clear(ctx))

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.True(t, got.Absent())
}
