package vault

import (
	"testing"
	"time"
)

func TestIssueAndRedeem(t *testing.T) {
	ts := NewTokenStore()

	token, expiresAt, err := ts.Issue("cred-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}
	if got := time.Until(expiresAt); got > TokenTTL || got < TokenTTL-time.Minute {
		t.Errorf("expiry %v not within TTL window", got)
	}

	credID, found, expired := ts.Redeem(token)
	if !found || expired {
		t.Fatalf("Redeem() found=%v expired=%v, want found unexpired", found, expired)
	}
	if credID != "cred-1" {
		t.Errorf("Redeem() credential = %s, want cred-1", credID)
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	ts := NewTokenStore()
	token, _, _ := ts.Issue("cred-1")

	if _, found, _ := ts.Redeem(token); !found {
		t.Fatal("first Redeem() should find the token")
	}
	if _, found, _ := ts.Redeem(token); found {
		t.Error("second Redeem() of the same token should not find it")
	}
	if ts.Len() != 0 {
		t.Errorf("token store has %d entries after exchange, want 0", ts.Len())
	}
}

func TestRedeemExpiredRemovesEntry(t *testing.T) {
	ts := NewTokenStore()
	token, _, _ := ts.Issue("cred-1")

	// Move the clock past expiry.
	ts.now = func() time.Time { return time.Now().Add(TokenTTL + time.Second) }

	_, found, expired := ts.Redeem(token)
	if !found || !expired {
		t.Fatalf("Redeem() found=%v expired=%v, want found expired", found, expired)
	}

	// Entry must be gone even though the exchange failed.
	if _, found, _ := ts.Redeem(token); found {
		t.Error("expired token should have been removed on first attempt")
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	ts := NewTokenStore()
	if _, found, _ := ts.Redeem("no-such-token"); found {
		t.Error("Redeem() of unknown token should not report found")
	}
}

func TestCleanupExpired(t *testing.T) {
	ts := NewTokenStore()
	ts.Issue("cred-1")
	ts.Issue("cred-2")

	ts.now = func() time.Time { return time.Now().Add(TokenTTL + time.Second) }
	ts.CleanupExpired()

	if ts.Len() != 0 {
		t.Errorf("token store has %d entries after cleanup, want 0", ts.Len())
	}
}

func TestTokensAreUnique(t *testing.T) {
	ts := NewTokenStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, err := ts.Issue("cred-1")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[token] {
			t.Fatal("Issue() produced a duplicate token")
		}
		seen[token] = true
	}
}
