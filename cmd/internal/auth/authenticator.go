// Package auth provides request authentication and the register/login HTTP
// endpoints.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dwell/cmd/security/token"
)

// SessionCookie is the cookie consulted when no bearer token is present.
const SessionCookie = "dwell_session"

// ErrNoCredentials is returned when a request carries no token at all.
var ErrNoCredentials = errors.New("auth: no credentials")

// TokenAuthenticator authenticates requests by verifying signed access
// tokens. Token sources, in order: Authorization bearer header, "token"
// query parameter (for WebSocket clients that cannot set headers), session
// cookie.
type TokenAuthenticator struct {
	key []byte
	now func() time.Time
}

// NewTokenAuthenticator constructs an authenticator over the given HMAC key.
func NewTokenAuthenticator(key []byte) (*TokenAuthenticator, error) {
	if len(key) < token.MinKeyBytes {
		return nil, token.ErrHMACKeyTooShort
	}
	return &TokenAuthenticator{key: key, now: func() time.Time { return time.Now().UTC() }}, nil
}

// AuthenticateRequest resolves the user behind r, or fails with
// ErrNoCredentials / a token verification error.
func (a *TokenAuthenticator) AuthenticateRequest(r *http.Request) (string, error) {
	tok := extractToken(r)
	if tok == "" {
		return "", ErrNoCredentials
	}
	return token.Parse(tok, a.now(), a.key)
}

func extractToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if scheme, rest, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		return q
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
