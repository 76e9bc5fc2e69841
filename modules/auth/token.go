package auth

import "sync"

// TokenSlot holds the bearer token shared by every request of one client.
// The last successful refresh wins.
type TokenSlot struct {
	mu    sync.RWMutex
	token string
}

// NewTokenSlot returns a slot, optionally seeded with a known token.
func NewTokenSlot(initial string) *TokenSlot {
	return &TokenSlot{token: initial}
}

// Get returns the current token and whether one is set.
func (s *TokenSlot) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token. Empty values are ignored.
func (s *TokenSlot) Set(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
