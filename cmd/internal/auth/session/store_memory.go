package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]Record
	byUser map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[rec.TokenHash]; ok {
		return fmt.Errorf("session: duplicate token hash")
	}
	s.byHash[rec.TokenHash] = rec
	set := s.byUser[rec.UserID]
	if set == nil {
		set = make(map[string]struct{})
		s.byUser[rec.UserID] = set
	}
	set[rec.TokenHash] = struct{}{}
	return nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Extend(ctx context.Context, tokenHash string, now, expiresAt time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	if !rec.ActiveAt(now) {
		return Record{}, ErrSessionExpired
	}

	rec.ExpiresAt = nextExpiry(rec.ExpiresAt, expiresAt)
	used := now
	rec.LastUsedAt = &used
	s.byHash[tokenHash] = rec
	return rec, nil
}

func (s *MemoryStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok {
		return nil
	}
	used := now
	rec.LastUsedAt = &used
	s.byHash[tokenHash] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(tokenHash)
	return nil
}

func (s *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.byUser[userID]
	n := len(set)
	for h := range set {
		delete(s.byHash, h)
	}
	delete(s.byUser, userID)
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for h, rec := range s.byHash {
		if !rec.ActiveAt(now) {
			s.deleteLocked(h)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

func (s *MemoryStore) deleteLocked(tokenHash string) {
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return
	}
	delete(s.byHash, tokenHash)
	if set := s.byUser[rec.UserID]; set != nil {
		delete(set, tokenHash)
		if len(set) == 0 {
			delete(s.byUser, rec.UserID)
		}
	}
}
