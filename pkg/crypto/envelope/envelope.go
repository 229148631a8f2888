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

// Package envelope derives per-user encryption keys from a long-lived master
// secret and seals custodial private keys at rest.
//
// Key derivation is HKDF with SHA-256. The extract-step salt input is the
// concatenation of the user ID and the per-user random salt, which binds the
// derived key to one user even though the master secret is shared; the
// expand-step info input is a fixed context label so future derived-key
// purposes can be separated by label. Derivation is deterministic: the key is
// never stored and is re-derived at signing time.
//
// Sealing is AES-256-GCM with a fresh random 16-byte IV per call and a
// 16-byte authentication tag. The wire format is
//
//	base64( IV(16) || TAG(16) || CIPHERTEXT )
//
// and tag verification must pass before any plaintext is released.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/keypo/keyring/pkg/crypto/secret"
)

const (
	// KeyLength is the derived key size in bytes (AES-256).
	KeyLength = 32

	// SaltLength is the per-user random salt size in bytes.
	SaltLength = 32

	// IVLength is the GCM nonce size in bytes.
	IVLength = 16

	// TagLength is the GCM authentication tag size in bytes.
	TagLength = 16

	// ContextKeyring is the domain-separation label for keyring encryption
	// keys. New derived-key purposes must use a new label.
	ContextKeyring = "keyring_encryption_v1"
)

var (
	// ErrMasterSecretRequired is returned when key derivation is attempted
	// without a configured master secret.
	ErrMasterSecretRequired = errors.New("master secret is not configured")

	// ErrAuthenticationFailed is returned when a sealed blob fails tag
	// verification: wrong key, corruption, or tampering. No further detail is
	// exposed.
	ErrAuthenticationFailed = errors.New("unseal failed")

	// ErrMalformedBlob is returned when a sealed blob is too short to contain
	// an IV and tag, or is not valid base64.
	ErrMalformedBlob = errors.New("malformed sealed blob")
)

// GenerateSalt returns a fresh hex-encoded random salt for a new user record.
func GenerateSalt() (string, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// DeriveKey derives the 32-byte per-user encryption key from the master
// secret, the user ID, the user's salt, and a context label. Identical inputs
// always yield an identical key. The caller owns the returned buffer and must
// Destroy it after use.
func DeriveKey(masterSecret, userID, salt, context string) (*secret.Buffer, error) {
	if masterSecret == "" {
		return nil, ErrMasterSecretRequired
	}

	// userID ++ salt feeds the extract step; the strength of this input is
	// what keeps per-user keys apart under a shared master secret.
	r := hkdf.New(sha256.New, []byte(masterSecret), []byte(userID+salt), []byte(context))
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return secret.New(key), nil
}

// Seal encrypts plaintext under key and returns the base64-encoded blob. A
// fresh random IV is generated on every call; reusing an IV under the same
// key would void both confidentiality and integrity of GCM.
func Seal(plaintext, key []byte) (string, error) {
	if len(key) != KeyLength {
		return "", fmt.Errorf("seal: key must be %d bytes, got %d", KeyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVLength)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	// gcm.Seal emits ciphertext||tag; the wire format wants IV||tag||ciphertext.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-TagLength]
	tag := sealed[len(sealed)-TagLength:]

	blob := make([]byte, 0, IVLength+TagLength+len(ct))
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Unseal decodes and decrypts a blob produced by Seal. Tag verification
// happens before any plaintext is returned; on failure the result is
// ErrAuthenticationFailed and no partial plaintext. The caller owns the
// returned buffer and must Destroy it after use.
func Unseal(encoded string, key []byte) (*secret.Buffer, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("unseal: key must be %d bytes, got %d", KeyLength, len(key))
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedBlob
	}
	if len(blob) < IVLength+TagLength {
		return nil, ErrMalformedBlob
	}

	iv := blob[:IVLength]
	tag := blob[IVLength : IVLength+TagLength]
	ct := blob[IVLength+TagLength:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unseal: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVLength)
	if err != nil {
		return nil, fmt.Errorf("unseal: %w", err)
	}

	sealed := make([]byte, 0, len(ct)+TagLength)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return secret.New(plaintext), nil
}
