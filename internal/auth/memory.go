package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/rewind/internal/shared"
)

// MemorySessionStore is the default [SessionStore], a mutex-guarded map scoped
// to process lifetime.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]TokenRecord
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]TokenRecord)}
}

func (s *MemorySessionStore) Put(token string, rec TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = rec
	return nil
}

func (s *MemorySessionStore) Get(token string) (TokenRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[token]
	return rec, ok, nil
}

func (s *MemorySessionStore) Update(token string, rec TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrUnknownSession, shared.Truncate(token, 6))
	}
	s.sessions[token] = rec
	return nil
}

func (s *MemorySessionStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// Len reports the number of live sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

type codeEntry struct {
	record    TokenRecord
	expiresAt time.Time
}

// MemoryCodeStore implements [CodeStore] with a mutex-guarded map.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]codeEntry
	now   func() time.Time
}

// NewMemoryCodeStore creates an empty in-memory one-time code store.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]codeEntry), now: time.Now}
}

func (s *MemoryCodeStore) Put(code string, rec TokenRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = codeEntry{record: rec, expiresAt: s.now().Add(ttl)}
	return nil
}

// TakeIfValid removes the entry regardless of expiry to bound memory growth,
// but only reports it found when redeemed within its TTL.
func (s *MemoryCodeStore) TakeIfValid(code string) (TokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		return TokenRecord{}, false, nil
	}
	delete(s.codes, code)

	if s.now().After(entry.expiresAt) {
		return TokenRecord{}, false, nil
	}
	return entry.record, true, nil
}

// StartJanitor launches a background sweep that purges expired codes never
// redeemed by the mobile app (e.g. the user closed the browser mid-login).
// Stops when ctx is cancelled.
func (s *MemoryCodeStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryCodeStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for code, entry := range s.codes {
		if now.After(entry.expiresAt) {
			delete(s.codes, code)
		}
	}
}
