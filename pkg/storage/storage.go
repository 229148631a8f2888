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

// Package storage defines the persistence contract for keyring users. A user
// record binds a passkey credential to a sealed private key; implementations
// must treat (ID) and (Username) as unique.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("user not found")

	// ErrAlreadyExists is returned when a create would violate uniqueness.
	ErrAlreadyExists = errors.New("user already exists")
)

// UserRecord is the persisted state for one registered user. SealedPrivateKey
// holds the envelope-encrypted EOA key and is never stored in plaintext.
type UserRecord struct {
	// ID is the stable user identifier (UUID).
	ID string

	// Username is the human-chosen handle, unique across the store.
	Username string

	// CredentialID is the base64url-encoded passkey credential id.
	CredentialID string

	// CredentialPublicKey is the standard-base64 COSE public key.
	CredentialPublicKey string

	// SignCounter is the last authenticator signature counter observed.
	SignCounter uint32

	// Salt is the per-user hex salt mixed into key derivation.
	Salt string

	// SealedPrivateKey is the base64 envelope blob, empty until sealing
	// completes during registration.
	SealedPrivateKey string

	// Address is the derived EOA address for the sealed key.
	Address string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy safe to mutate without affecting store state.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// UserStore persists user records.
type UserStore interface {
	// Create inserts a new record. Returns ErrAlreadyExists when the ID or
	// username is taken.
	Create(record *UserRecord) error

	// FindByUsername looks up a record by username.
	FindByUsername(username string) (*UserRecord, error)

	// FindByID looks up a record by user ID.
	FindByID(id string) (*UserRecord, error)

	// Update overwrites an existing record. Returns ErrNotFound when the ID
	// is unknown.
	Update(record *UserRecord) error
}
