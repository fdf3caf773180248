package token

import (
	"strings"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndParse_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tok, exp, err := Issue("01JF5XK3D9M2P7Q8R9S0T1U2V3", 15*time.Minute, now, testKey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expiry not in the future: %v", exp)
	}

	userID, err := Parse(tok, now, testKey)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != "01JF5XK3D9M2P7Q8R9S0T1U2V3" {
		t.Fatalf("unexpected user id: %q", userID)
	}
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tok, _, err := Issue("user-a", 1*time.Minute, now, testKey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := Parse(tok, now.Add(2*time.Minute), testKey); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParse_TamperedSignature(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tok, _, err := Issue("user-a", time.Minute, now, testKey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Flip the last signature character.
	last := tok[len(tok)-1]
	repl := "0"
	if last == '0' {
		repl = "1"
	}
	tampered := tok[:len(tok)-1] + repl

	if _, err := Parse(tampered, now, testKey); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestParse_WrongKey(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tok, _, err := Issue("user-a", time.Minute, now, testKey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := []byte(strings.Repeat("x", 32))
	if _, err := Parse(tok, now, other); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	for _, tok := range []string{"", "a", "a.b", "a.b.c.d", "..", "a..c"} {
		if _, err := Parse(tok, now, testKey); err != ErrMalformedToken && err != ErrBadSignature {
			t.Fatalf("token %q: expected malformed/bad-signature error, got %v", tok, err)
		}
	}
}

func TestIssue_RejectsDottedUserID(t *testing.T) {
	t.Parallel()

	if _, _, err := Issue("evil.user", time.Minute, time.Now(), testKey); err == nil {
		t.Fatal("expected error for dotted user id")
	}
}
