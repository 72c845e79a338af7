// Package session holds the gateway's session store. The access core only
// reads sessions and triggers eviction on auth failures.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/golang-jwt/jwt/v5"
)

// Store supplies and evicts the signed-in user's credentials.
type Store interface {
	Current(ctx context.Context) (access.Session, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory. Expired or partial
// sessions read back as absent.
type MemoryStore struct {
	mu   sync.RWMutex
	sess access.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Set(ctx context.Context, sess access.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess = sess

	return nil
}

func (s *MemoryStore) Current(ctx context.Context) (access.Session, error) {
	s.mu.RLock()
	sess := s.sess
	s.mu.RUnlock()

	if sess.Absent() || TokenExpired(sess.Token) {
		return access.Session{}, nil
	}

	return sess, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess = access.Session{}

	return nil
}

var _ access.SessionInvalidator = (*MemoryStore)(nil)

// TokenExpired inspects the JWT exp claim without verifying the signature;
// the gateway holds no signing key and only needs to treat stale tokens as
// absent before bothering the backend. Tokens that don't parse as JWTs are
// treated as opaque and never locally expired.
func TokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Before(time.Now())
}
