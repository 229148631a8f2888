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

package challenge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	s := NewStore(time.Minute)

	_, ok := s.Get("alice")
	assert.False(t, ok)

	s.Put("alice", []byte("challenge-1"))
	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, []byte("challenge-1"), got)
}

func TestStore_PutOverwrites(t *testing.T) {
	s := NewStore(time.Minute)

	s.Put("alice", []byte("first"))
	s.Put("alice", []byte("second"))

	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)

	// The replaced challenge is no longer consumable.
	assert.False(t, s.Consume("alice", []byte("first")))
	assert.True(t, s.Consume("alice", []byte("second")))
}

func TestStore_ConsumeOnce(t *testing.T) {
	s := NewStore(time.Minute)
	ch := []byte("one-shot")
	s.Put("alice", ch)

	assert.True(t, s.Consume("alice", ch))
	assert.False(t, s.Consume("alice", ch), "second consume with same arguments must fail")
	_, ok := s.Get("alice")
	assert.False(t, ok)
}

func TestStore_ConsumeMismatchLeavesEntry(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("alice", []byte("expected"))

	assert.False(t, s.Consume("alice", []byte("wrong")))

	// A failed consume leaves the ceremony pending for a corrected retry.
	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, []byte("expected"), got)
}

func TestStore_ConsumeUnknownKey(t *testing.T) {
	s := NewStore(time.Minute)
	assert.False(t, s.Consume("nobody", []byte("anything")))
}

func TestStore_TTLExpiry(t *testing.T) {
	s := NewStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Put("alice", []byte("stale"))

	current = current.Add(2 * time.Minute)
	_, ok := s.Get("alice")
	assert.False(t, ok)
	assert.False(t, s.Consume("alice", []byte("stale")))
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Put("old-1", []byte("a"))
	s.Put("old-2", []byte("b"))
	current = current.Add(2 * time.Minute)
	s.Put("fresh", []byte("c"))

	removed := s.Cleanup()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Get("fresh")
	assert.True(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", n)
			ch := []byte(fmt.Sprintf("challenge-%d", n))
			s.Put(key, ch)
			got, ok := s.Get(key)
			assert.True(t, ok)
			assert.Equal(t, ch, got)
			assert.True(t, s.Consume(key, ch))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("alice", []byte("original"))

	got, _ := s.Get("alice")
	got[0] = 'X'

	fresh, _ := s.Get("alice")
	assert.Equal(t, []byte("original"), fresh)
}
