package memory

import (
	"context"
	"sync"
	"time"
)

// SubscriptionStore is the in-process implementation of
// app.SubscriptionRegistry. Expired entries stay in the map and are simply
// inert; grants overwrite.
type SubscriptionStore struct {
	mu       sync.RWMutex
	expiries map[int64]time.Time
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		expiries: make(map[int64]time.Time),
	}
}

func (s *SubscriptionStore) SetExpiry(_ context.Context, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiries[userID] = expiresAt
	return nil
}

func (s *SubscriptionStore) Expiry(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.expiries[userID]
	return expiry, ok, nil
}
