// ABOUTME: Tests for the operator token store
// ABOUTME: Covers issue/valid, FIFO eviction order and the watermark bound

package auth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_IssueAndValid(t *testing.T) {
	s := NewTokenStore(50, 25)

	tok := s.Issue()
	require.NotEmpty(t, tok)
	assert.True(t, s.Valid(tok))
	assert.False(t, s.Valid("not-a-token"))
	assert.False(t, s.Valid(""))
	assert.Equal(t, 1, s.Len())

	other := s.Issue()
	assert.NotEqual(t, tok, other)
}

func TestTokenStore_FiftyFirstEvictsOldest(t *testing.T) {
	s := NewTokenStore(50, 25)

	var tokens []string
	for i := 0; i < 50; i++ {
		tokens = append(tokens, s.Issue())
	}
	assert.Equal(t, 50, s.Len(), "no eviction at capacity")
	assert.True(t, s.Valid(tokens[0]))

	newest := s.Issue()

	assert.Equal(t, 25, s.Len())
	assert.True(t, s.Valid(newest))
	assert.False(t, s.Valid(tokens[0]), "oldest token evicted first")

	// Tokens 0..25 are gone, 26..49 survive alongside the newest.
	for i, tok := range tokens {
		if i <= 25 {
			assert.False(t, s.Valid(tok), "token %d should be evicted", i)
		} else {
			assert.True(t, s.Valid(tok), "token %d should survive", i)
		}
	}
}

func TestTokenStore_NeverExceedsCapacity(t *testing.T) {
	s := NewTokenStore(5, 2)
	for i := 0; i < 100; i++ {
		s.Issue()
		assert.LessOrEqual(t, s.Len(), 5)
	}
}

func TestTokenStore_Revoke(t *testing.T) {
	s := NewTokenStore(0, 0)
	tok := s.Issue()
	s.Revoke(tok)
	assert.False(t, s.Valid(tok))
	assert.Equal(t, 0, s.Len())
	s.Revoke("unknown")
}

func TestTokenStore_WatermarkClamped(t *testing.T) {
	s := NewTokenStore(3, 10)
	for i := 0; i < 4; i++ {
		s.Issue()
	}
	assert.Equal(t, 3, s.Len())
}

func TestTokenStore_Concurrent(t *testing.T) {
	s := NewTokenStore(50, 25)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := s.Issue()
			s.Valid(tok)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 50)
}
