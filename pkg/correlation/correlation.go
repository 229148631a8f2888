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

// Package correlation propagates a per-request correlation ID so a ceremony
// spanning several requests can be traced through the logs.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// IDKey is the context key for storing correlation IDs
	IDKey contextKey = "correlation-id"

	// Header is the HTTP header carrying the correlation ID
	Header = "X-Correlation-ID"
)

// WithID adds a correlation ID to the context.
func WithID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, IDKey, id)
}

// GetID retrieves the correlation ID from context. Returns an empty string
// if no correlation ID is found.
func GetID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(IDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 correlation ID.
func NewID() string {
	return uuid.New().String()
}

// GetOrGenerate retrieves an existing correlation ID from context or
// generates a new one if none exists.
func GetOrGenerate(ctx context.Context) string {
	if id := GetID(ctx); id != "" {
		return id
	}
	return NewID()
}
