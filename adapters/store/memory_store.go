package store

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/ports"
)

// MemoryStore keeps credentials in process memory only. Nothing survives a
// restart, which is all a client session needs.
type MemoryStore struct {
	credentials map[string]string
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]string),
	}
}

// Put stores the credential under scope, replacing anything already there.
func (s *MemoryStore) Put(ctx context.Context, scope, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[scope] = credential
	return nil
}

// Get returns the credential stored under scope.
func (s *MemoryStore) Get(ctx context.Context, scope string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[scope]
	if !ok {
		return "", ports.ErrNoCredential
	}
	return credential, nil
}

// Delete removes scope. Deleting an unknown scope is not an error.
func (s *MemoryStore) Delete(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, scope)
	return nil
}

// Len reports how many scopes are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}
