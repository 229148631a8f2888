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

// Package secret provides an owned buffer type for key material that must not
// outlive its use. Secrets are held as mutable byte slices, never as strings,
// so the runtime cannot silently duplicate them, and every code path is
// expected to call Destroy before returning.
package secret

// Buffer holds sensitive bytes (derived keys, plaintext private keys) and
// zeroes them on Destroy. The zero value is a destroyed buffer.
type Buffer struct {
	b []byte
}

// New wraps b in a Buffer, taking ownership of the slice. The caller must not
// retain or reuse b afterwards.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Bytes returns the underlying slice. The slice is only valid until Destroy
// is called; callers must not keep copies.
func (s *Buffer) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len returns the number of bytes held.
func (s *Buffer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Destroy overwrites the buffer with zero bytes and releases it. It is
// idempotent and safe to call on a nil Buffer, so it can be deferred
// unconditionally on every exit path.
func (s *Buffer) Destroy() {
	if s == nil || s.b == nil {
		return
	}
	Zero(s.b)
	s.b = nil
}

// Zero overwrites b with zero bytes. Safe on nil and empty slices.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
