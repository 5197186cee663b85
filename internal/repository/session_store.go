package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/swapsoft/pwdbudget/internal/models"
)

// ErrSessionNotFound is returned by SessionStore.Get when no session exists
// for the key.
var ErrSessionNotFound = errors.New("otp session not found")

// SessionStore holds at most one OTP session per (office, user). Put replaces
// any existing session for the same key. Stores never judge expiry on Get;
// that is the caller's decision, made against its own clock.
type SessionStore interface {
	Put(ctx context.Context, s *models.OTPSession) error
	Get(ctx context.Context, key models.SessionKey) (*models.OTPSession, error)
	Delete(ctx context.Context, key models.SessionKey) error
	// FindByUser returns every session of userID across offices.
	FindByUser(ctx context.Context, userID string) ([]*models.OTPSession, error)
	// Sweep removes sessions whose RetainUntil has passed at now and reports
	// how many it removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu sync.RWMutex
	m  map[models.SessionKey]models.OTPSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		m: make(map[models.SessionKey]models.OTPSession),
	}
}

func (s *MemorySessionStore) Put(ctx context.Context, sess *models.OTPSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.Key()] = *sess
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, key models.SessionKey) (*models.OTPSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, key models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemorySessionStore) FindByUser(ctx context.Context, userID string) ([]*models.OTPSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OTPSession, 0, 1)
	for k, sess := range s.m {
		if k.UserID == userID {
			sess := sess
			out = append(out, &sess)
		}
	}
	return out, nil
}

func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.m {
		if now.After(sess.RetainUntil()) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}
