package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultPairingTTL is how long a pairing code stays valid.
const DefaultPairingTTL = 5 * time.Minute

type pairingEntry struct {
	createdAt time.Time
	requestID string
}

// PairingStore tracks pending pairing codes for control surfaces.
type PairingStore struct {
	mu      sync.Mutex
	entries map[string]pairingEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	if ttl <= 0 {
		ttl = DefaultPairingTTL
	}
	return &PairingStore{
		entries: make(map[string]pairingEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// StartCleanup removes expired codes periodically until the context is canceled.
func (store *PairingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.CleanupExpired()
			case <-ctx.Done():
				store.Clear()
				return
			}
		}
	}()
}

// CleanupExpired removes expired pairing codes.
func (store *PairingStore) CleanupExpired() {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	for code, entry := range store.entries {
		if now.Sub(entry.createdAt) > store.ttl {
			delete(store.entries, code)
		}
	}
}

// Clear wipes all entries from the store.
func (store *PairingStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = make(map[string]pairingEntry)
}

// Create generates and stores a new six-digit pairing code.
func (store *PairingStore) Create(requestID string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for attempts := 0; attempts < 10; attempts++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		if _, exists := store.entries[code]; exists {
			continue
		}
		store.entries[code] = pairingEntry{
			createdAt: store.now(),
			requestID: requestID,
		}
		return code, nil
	}

	return "", fmt.Errorf("unable to generate unique pairing code")
}

// Redeem consumes a code. It reports whether the code existed and
// whether it had expired.
func (store *PairingStore) Redeem(code string) (found, expired bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.entries[code]
	if !ok {
		return false, false
	}
	delete(store.entries, code)
	return true, store.now().Sub(entry.createdAt) > store.ttl
}

// Len reports the number of pending codes.
func (store *PairingStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

func randomPairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
