package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// TokenTTL is how long an issued access token stays exchangeable.
const TokenTTL = 5 * time.Minute

// tokenEntry maps a token back to the credential it unlocks.
type tokenEntry struct {
	CredentialID string
	ExpiresAt    time.Time
}

// TokenStore manages single-use access tokens in memory. Tokens never touch
// disk; a restart invalidates all outstanding tokens.
type TokenStore struct {
	tokens map[string]tokenEntry
	mu     sync.Mutex
	now    func() time.Time
}

// NewTokenStore creates an empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]tokenEntry),
		now:    time.Now,
	}
}

// Issue generates a cryptographically random 256-bit URL-safe token bound to
// the credential for TokenTTL.
func (ts *TokenStore) Issue(credentialID string) (string, time.Time, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate random token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(bytes)
	expiresAt := ts.now().Add(TokenTTL)

	ts.mu.Lock()
	ts.tokens[token] = tokenEntry{CredentialID: credentialID, ExpiresAt: expiresAt}
	ts.mu.Unlock()

	return token, expiresAt, nil
}

// Redeem looks up and removes a token in one critical section. The entry is
// deleted on the first attempt whether the token turns out valid or expired.
// Returns the credential ID and whether the entry existed and was unexpired.
func (ts *TokenStore) Redeem(token string) (credentialID string, found, expired bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tokens[token]
	if !ok {
		return "", false, false
	}
	delete(ts.tokens, token)

	if ts.now().After(entry.ExpiresAt) {
		return "", true, true
	}
	return entry.CredentialID, true, false
}

// CleanupExpired removes expired tokens that were never exchanged.
func (ts *TokenStore) CleanupExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for token, entry := range ts.tokens {
		if now.After(entry.ExpiresAt) {
			delete(ts.tokens, token)
		}
	}
}

// Len returns the number of outstanding tokens
func (ts *TokenStore) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tokens)
}
