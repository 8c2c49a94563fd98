package cache

import (
	"context"
	"sync"

	"identity-hub/internal/domain"
)

// MemoryTokenStore is a process-local single token slot.
// Implements domain.TokenStore.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	slot *domain.CachedToken
}

// NewMemoryTokenStore creates an empty slot.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load returns the cached token, if any. Expiry is the caller's concern.
func (s *MemoryTokenStore) Load(_ context.Context) (domain.CachedToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.slot == nil {
		return domain.CachedToken{}, false, nil
	}
	return *s.slot, true, nil
}

// Save replaces the cached token.
func (s *MemoryTokenStore) Save(_ context.Context, token domain.CachedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slot = &token
	return nil
}
