package sip

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultNonceTTL is how long an issued nonce stays valid.
const DefaultNonceTTL = 5 * time.Minute

// nonceStore issues random nonces and consumes them on first use.
// Replaying a nonce, even a fresh one, fails validation.
type nonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	ttl    time.Duration
}

func newNonceStore(ttl time.Duration) *nonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &nonceStore{
		nonces: make(map[string]time.Time),
		ttl:    ttl,
	}
}

// Issue creates and remembers a new nonce.
func (n *nonceStore) Issue() string {
	nonce := randomHex(8)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[nonce] = time.Now().Add(n.ttl)
	return nonce
}

// Consume validates a nonce and removes it. It returns false for
// unknown, expired or already-used nonces.
func (n *nonceStore) Consume(nonce string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	expiration, ok := n.nonces[nonce]
	if !ok {
		return false
	}
	delete(n.nonces, nonce)
	return time.Now().Before(expiration)
}

// Sweep drops expired nonces so the map does not grow unbounded under
// clients that request challenges and never answer them.
func (n *nonceStore) Sweep() {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	for nonce, expiration := range n.nonces {
		if now.After(expiration) {
			delete(n.nonces, nonce)
		}
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func newTag() string {
	return "z9hG4bK-" + randomHex(4)
}
