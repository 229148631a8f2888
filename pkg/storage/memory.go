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

package storage

import (
	"sync"
	"time"
)

// MemoryUserStore is an in-memory implementation of UserStore.
// This is intended for development and testing only.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byID       map[string]*UserRecord
	byUsername map[string]*UserRecord
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:       make(map[string]*UserRecord),
		byUsername: make(map[string]*UserRecord),
	}
}

// Create inserts a new record, enforcing ID and username uniqueness.
func (s *MemoryUserStore) Create(record *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[record.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byUsername[record.Username]; ok {
		return ErrAlreadyExists
	}

	stored := record.Clone()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byUsername[stored.Username] = stored
	return nil
}

// FindByUsername retrieves a record by username.
func (s *MemoryUserStore) FindByUsername(username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// FindByID retrieves a record by user ID.
func (s *MemoryUserStore) FindByID(id string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Update overwrites an existing record.
func (s *MemoryUserStore) Update(record *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[record.ID]
	if !ok {
		return ErrNotFound
	}

	stored := record.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	// Username changes must not leave a stale index entry.
	if existing.Username != stored.Username {
		delete(s.byUsername, existing.Username)
	}

	s.byID[stored.ID] = stored
	s.byUsername[stored.Username] = stored
	return nil
}

// Count returns the number of users in the store.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all users from the store.
func (s *MemoryUserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*UserRecord)
	s.byUsername = make(map[string]*UserRecord)
}
