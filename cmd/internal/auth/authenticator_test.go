package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dwell/cmd/security/token"
)

func issueTestToken(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()

	tok, _, err := token.Issue(userID, ttl, time.Now().UTC(), testKey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func TestAuthenticateRequestSources(t *testing.T) {
	a, err := NewTokenAuthenticator(testKey)
	if err != nil {
		t.Fatal(err)
	}
	tok := issueTestToken(t, "user-1", time.Hour)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		got, err := a.AuthenticateRequest(req)
		if err != nil || got != "user-1" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("query param", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws/conv-1?token="+tok, nil)
		got, err := a.AuthenticateRequest(req)
		if err != nil || got != "user-1" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
		got, err := a.AuthenticateRequest(req)
		if err != nil || got != "user-1" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		if _, err := a.AuthenticateRequest(req); !errors.Is(err, ErrNoCredentials) {
			t.Fatalf("err = %v, want ErrNoCredentials", err)
		}
	})
}

func TestAuthenticateRequestRejectsBadTokens(t *testing.T) {
	a, err := NewTokenAuthenticator(testKey)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("expired", func(t *testing.T) {
		tok := issueTestToken(t, "user-1", -time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		if _, err := a.AuthenticateRequest(req); !errors.Is(err, token.ErrExpiredToken) {
			t.Fatalf("err = %v, want ErrExpiredToken", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		tok := issueTestToken(t, "user-1", time.Hour)
		bad := strings.Replace(tok, "user-1", "user-2", 1)
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.Header.Set("Authorization", "Bearer "+bad)
		if _, err := a.AuthenticateRequest(req); !errors.Is(err, token.ErrBadSignature) {
			t.Fatalf("err = %v, want ErrBadSignature", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		if _, err := a.AuthenticateRequest(req); err == nil {
			t.Fatal("garbage token accepted")
		}
	})
}

func TestNewTokenAuthenticatorKeyPolicy(t *testing.T) {
	if _, err := NewTokenAuthenticator([]byte("short")); !errors.Is(err, token.ErrHMACKeyTooShort) {
		t.Fatalf("err = %v, want ErrHMACKeyTooShort", err)
	}
}
