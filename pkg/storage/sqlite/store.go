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

// Package sqlite implements storage.UserStore over a single SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keypo/keyring/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	username              TEXT NOT NULL UNIQUE,
	credential_id         TEXT NOT NULL,
	credential_public_key TEXT NOT NULL,
	sign_counter          INTEGER NOT NULL DEFAULT 0,
	salt                  TEXT NOT NULL,
	sealed_private_key    TEXT NOT NULL DEFAULT '',
	address               TEXT NOT NULL DEFAULT '',
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements keyring user persistence over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a keyring SQLite store and ensures the schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new user record.
func (s *Store) Create(record *storage.UserRecord) error {
	now := time.Now().UTC()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO users (
			id, username, credential_id, credential_public_key,
			sign_counter, salt, sealed_private_key, address,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Username, record.CredentialID,
		record.CredentialPublicKey, record.SignCounter, record.Salt,
		record.SealedPrivateKey, record.Address,
		toMillis(createdAt), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername looks up a record by username.
func (s *Store) FindByUsername(username string) (*storage.UserRecord, error) {
	return s.queryOne(`SELECT id, username, credential_id, credential_public_key,
		sign_counter, salt, sealed_private_key, address, created_at, updated_at
		FROM users WHERE username = ?`, username)
}

// FindByID looks up a record by user ID.
func (s *Store) FindByID(id string) (*storage.UserRecord, error) {
	return s.queryOne(`SELECT id, username, credential_id, credential_public_key,
		sign_counter, salt, sealed_private_key, address, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

// Update overwrites an existing record.
func (s *Store) Update(record *storage.UserRecord) error {
	result, err := s.db.Exec(`
		UPDATE users SET
			username = ?, credential_id = ?, credential_public_key = ?,
			sign_counter = ?, salt = ?, sealed_private_key = ?, address = ?,
			updated_at = ?
		WHERE id = ?`,
		record.Username, record.CredentialID, record.CredentialPublicKey,
		record.SignCounter, record.Salt, record.SealedPrivateKey,
		record.Address, toMillis(time.Now().UTC()), record.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) queryOne(query string, arg any) (*storage.UserRecord, error) {
	var record storage.UserRecord
	var createdAt, updatedAt int64

	err := s.db.QueryRow(query, arg).Scan(
		&record.ID, &record.Username, &record.CredentialID,
		&record.CredentialPublicKey, &record.SignCounter, &record.Salt,
		&record.SealedPrivateKey, &record.Address, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return &record, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
