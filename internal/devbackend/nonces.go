package devbackend

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// nonceStore tracks issued nonces until they are used or expire.
type nonceStore struct {
	issued map[string]time.Time
	ttl    time.Duration
	mu     sync.Mutex
}

func newNonceStore(ttl time.Duration) *nonceStore {
	return &nonceStore{
		issued: make(map[string]time.Time),
		ttl:    ttl,
	}
}

// Issue creates a nonce. Nonces are alphanumeric as EIP-4361 requires.
func (s *nonceStore) Issue() string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.issued[nonce] = time.Now().Add(s.ttl)
	return nonce
}

// Consume reports whether nonce was issued and is still valid, and removes it
// either way so it can never be used twice.
func (s *nonceStore) Consume(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.issued[nonce]
	delete(s.issued, nonce)
	return ok && time.Now().Before(expiry)
}

func (s *nonceStore) sweepLocked() {
	now := time.Now()
	for nonce, expiry := range s.issued {
		if now.After(expiry) {
			delete(s.issued, nonce)
		}
	}
}
