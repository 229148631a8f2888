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

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for passkey ceremony operations.
var (
	// ErrChallengeNotFound is returned when no pending challenge exists for
	// the ceremony key, either because begin was never called or the
	// challenge expired.
	ErrChallengeNotFound = errors.New("no pending challenge")

	// ErrInvalidCredential is returned when stored credential material
	// cannot be decoded.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrVerificationFailed is returned when the authenticator response does
	// not verify against the pending ceremony.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrClonedAuthenticator is returned when the signature counter indicates
	// a possible cloned authenticator.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")
)

// CeremonyError wraps an error with the ceremony operation that failed.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: err}
}
