package assessment

import (
	"sync"
	"time"
)

// DefaultAttemptTTL bounds how long an abandoned attempt is kept around.
const DefaultAttemptTTL = 2 * time.Hour

// Store holds live attempts in memory, keyed by attempt ID. Expired entries
// are dropped lazily on access; nothing is ever written to disk.
type Store struct {
	mu       sync.RWMutex
	attempts map[string]*storeEntry
	ttl      time.Duration
}

type storeEntry struct {
	attempt   *Attempt
	expiresAt time.Time
}

// NewStore builds a store with the given attempt TTL (DefaultAttemptTTL
// when non-positive).
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	return &Store{
		attempts: make(map[string]*storeEntry),
		ttl:      ttl,
	}
}

// Begin validates the bank and opens a fresh attempt against it.
func (s *Store) Begin(bank *Bank, policy LockPolicy) (*Attempt, error) {
	if err := ValidateBank(bank); err != nil {
		return nil, err
	}

	attempt := newAttempt(bank, policy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.attempts[attempt.ID] = &storeEntry{
		attempt:   attempt,
		expiresAt: time.Now().Add(s.ttl),
	}
	return attempt, nil
}

// Resolve returns the attempt for id, verifying it still matches the
// current bank content. A bank edited mid-attempt invalidates the attempt:
// residual answers against a different question set must never score.
func (s *Store) Resolve(id string, bank *Bank) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[id]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.attempts, id)
		return nil, ErrStaleAttempt
	}
	if entry.attempt.fingerprint != bank.Fingerprint() {
		delete(s.attempts, id)
		return nil, ErrStaleAttempt
	}
	return entry.attempt, nil
}

// Remove drops an attempt, typically after submission.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}

// Len reports the number of live attempts (expired entries excluded).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.attempts)
}

func (s *Store) sweepLocked() {
	now := time.Now()
	for id, entry := range s.attempts {
		if now.After(entry.expiresAt) {
			delete(s.attempts, id)
		}
	}
}
