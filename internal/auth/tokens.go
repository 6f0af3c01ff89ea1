// ABOUTME: Bounded set of opaque operator bearer tokens.
// ABOUTME: Evicts oldest tokens first once capacity is exceeded; tokens never expire by time.

package auth

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// Default token store bounds.
const (
	DefaultMaxTokens      = 50
	DefaultTokenWatermark = 25
)

// TokenStore holds issued operator tokens in insertion order. Once an issue
// pushes the set above maxTokens, the oldest tokens are evicted until at most
// watermark remain.
type TokenStore struct {
	mu        sync.Mutex
	tokens    map[string]*list.Element
	order     *list.List // oldest at front
	max       int
	watermark int
}

// NewTokenStore creates a TokenStore. Non-positive bounds use the defaults;
// a watermark above max is clamped to max.
func NewTokenStore(max, watermark int) *TokenStore {
	if max <= 0 {
		max = DefaultMaxTokens
	}
	if watermark <= 0 {
		watermark = DefaultTokenWatermark
	}
	if watermark > max {
		watermark = max
	}
	return &TokenStore{
		tokens:    make(map[string]*list.Element),
		order:     list.New(),
		max:       max,
		watermark: watermark,
	}
}

// Issue creates and records a new token.
func (s *TokenStore) Issue() string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = s.order.PushBack(token)
	if len(s.tokens) > s.max {
		for len(s.tokens) > s.watermark {
			s.evictOldest()
		}
	}
	return token
}

// Valid reports whether token is in the set.
func (s *TokenStore) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// Revoke removes token from the set.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.tokens[token]; ok {
		s.order.Remove(elem)
		delete(s.tokens, token)
	}
}

// Len returns the number of valid tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// evictOldest removes the oldest token. Must be called with mu held.
func (s *TokenStore) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	token, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.tokens, token)
}
