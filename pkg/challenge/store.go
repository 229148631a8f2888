// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

// Package challenge implements the ephemeral challenge registry used by the
// WebAuthn ceremonies. Entries are keyed by protocol identifier (username for
// registration, credential ID for authentication), are overwritten by a new
// begin for the same key, and are consumed exactly once on successful
// verification. The store is process-local; outstanding ceremonies do not
// survive a restart and must be retried from the start.
package challenge

import (
	"crypto/subtle"
	"sync"
	"time"
)

// DefaultTTL is how long an unconsumed challenge stays valid. Abandoned
// ceremonies are reclaimed after this window so the store cannot grow without
// bound.
const DefaultTTL = 5 * time.Minute

type entry struct {
	challenge []byte
	createdAt time.Time
}

// Store is a concurrency-safe pending-challenge registry. Distinct ceremony
// keys never contend beyond the map lock; two begins for the same key race
// benignly with the later write winning.
type Store struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
	now func() time.Time
}

// NewStore creates a challenge store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl: ttl,
		m:   make(map[string]entry),
		now: time.Now,
	}
}

// Put records challenge under key, replacing any previous entry for that key.
// Replacing implicitly cancels the prior ceremony: a client still holding the
// old challenge will fail verification and has to start over.
func (s *Store) Put(key string, challenge []byte) {
	ch := make([]byte, len(challenge))
	copy(ch, challenge)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{challenge: ch, createdAt: s.now()}
}

// Get returns the pending challenge for key, or false if none exists or the
// entry has expired. Expired entries linger until a Put for the same key
// overwrites them or Cleanup sweeps them; Get itself does not mutate state.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.createdAt) > s.ttl {
		return nil, false
	}
	ch := make([]byte, len(e.challenge))
	copy(ch, e.challenge)
	return ch, true
}

// Consume compares presented against the stored challenge for key and, on a
// match, deletes the entry and reports success. A mismatch, a missing entry,
// or an expired entry leaves the store unchanged and reports failure, so a
// successful Consume can happen at most once per issued challenge.
func (s *Store) Consume(key string, presented []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return false
	}
	if s.now().Sub(e.createdAt) > s.ttl {
		delete(s.m, key)
		return false
	}
	if subtle.ConstantTimeCompare(e.challenge, presented) != 1 {
		return false
	}
	delete(s.m, key)
	return true
}

// Delete removes any entry for key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Len returns the number of entries currently held, including not yet swept
// expired ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Cleanup evicts expired entries and returns how many were removed. Callers
// that keep a long-lived store should run this periodically.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.m {
		if now.Sub(e.createdAt) > s.ttl {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}
