package session

import (
	"context"
	"sync"
	"time"

	"worksite/cmd/security/token"
)

// MemoryStore is a process-local Store for tests and single-instance development.
type MemoryStore struct {
	mu     sync.Mutex
	digest token.Digester
	byHash map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(digest token.Digester) *MemoryStore {
	return &MemoryStore{digest: digest, byHash: map[string]Record{}}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *MemoryStore) insertLocked(rec Record) error {
	h := s.digest.Digest(rec.Token)
	if _, ok := s.byHash[h]; ok {
		return ErrTokenConflict
	}
	rec.Token = ""
	rec.TokenHash = h
	rec.RevokedAt = nil
	s.byHash[h] = rec
	return nil
}

func (s *MemoryStore) FindActiveByToken(_ context.Context, tok string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[s.digest.Digest(tok)]
	if !ok || !rec.Active(now) {
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tok string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.digest.Digest(tok)
	if rec, ok := s.byHash[h]; ok && rec.RevokedAt == nil {
		at := now
		rec.RevokedAt = &at
		s.byHash[h] = rec
	}
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, rec := range s.byHash {
		if rec.UserID != userID || rec.RevokedAt != nil {
			continue
		}
		at := now
		rec.RevokedAt = &at
		s.byHash[h] = rec
		n++
	}
	return n, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, rec := range s.byHash {
		if !rec.ExpiresAt.After(now) {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Rotate(_ context.Context, oldToken string, next Record, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldHash := s.digest.Digest(oldToken)
	old, ok := s.byHash[oldHash]
	if !ok || !old.Active(now) {
		return ErrSessionNotFound
	}
	if _, dup := s.byHash[s.digest.Digest(next.Token)]; dup {
		return ErrTokenConflict
	}

	at := now
	old.RevokedAt = &at
	s.byHash[oldHash] = old
	return s.insertLocked(next)
}

// Len returns the number of stored records, revoked and expired included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}
