package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tunebridge/tunebridge/internal/shared"
)

// defaultStateTTL bounds how long an authorize flow may stay pending before
// its state is evicted.
const defaultStateTTL = 10 * time.Minute

// flowState is the one-shot per-user state of a pending authorize flow.
type flowState struct {
	State    string // CSRF token carried through the redirect
	Verifier string // PKCE code verifier, empty for non-PKCE flows
	expires  time.Time
}

// StateStore holds transient authorize-flow state keyed by user id.
//
// Entries are one-shot: Take removes them. Expired entries are swept on every
// write, keeping the store bounded by the number of users with a flow pending
// inside the TTL window.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]flowState
}

// NewStateStore creates a StateStore with the given TTL. A non-positive TTL
// falls back to the default authorize window.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateStore{ttl: ttl, entries: make(map[int64]flowState)}
}

// Put stores flow state for a user, replacing any pending flow.
func (s *StateStore) Put(userID int64, state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, entry := range s.entries {
		if entry.expires.Before(now) {
			delete(s.entries, id)
		}
	}

	s.entries[userID] = flowState{State: state, Verifier: verifier, expires: now.Add(s.ttl)}
}

// Take retrieves and removes the pending flow state for a user. Returns
// [shared.ErrStateExpired] if no live entry exists.
func (s *StateStore) Take(userID int64) (state, verifier string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[userID]
	if !ok || entry.expires.Before(time.Now()) {
		delete(s.entries, userID)
		return "", "", shared.ErrStateExpired
	}

	delete(s.entries, userID)
	return entry.State, entry.Verifier, nil
}

// Len reports the number of live entries.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// newPKCEVerifier generates a PKCE code verifier.
func newPKCEVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("%w: failed to generate pkce verifier: %v", shared.ErrInternal, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// pkceChallenge derives the S256 code challenge from a verifier.
func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
