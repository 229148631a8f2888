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

package keyring

import "errors"

// Sentinel errors for keyring operations.
var (
	// ErrUsernameRequired is returned when an operation is called without a
	// username.
	ErrUsernameRequired = errors.New("username is required")

	// ErrMessageRequired is returned when a signing request carries no
	// message.
	ErrMessageRequired = errors.New("message is required")

	// ErrUserNotFound is returned when no user record exists for the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when registering a username that is
	// already taken.
	ErrUserAlreadyExists = errors.New("username already registered")

	// ErrSigningFailed wraps downstream failures of the signing pipeline
	// that are not attributable to a more specific cause.
	ErrSigningFailed = errors.New("signing failed")
)
