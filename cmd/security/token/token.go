package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "DWELL_TOKEN_HMAC_KEY"

	// MinKeyBytes is the enforced minimum key length.
	MinKeyBytes = 32
)

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a
// minimum byte length. Missing/blank -> ErrHMACKeyMissing; too short ->
// ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Issue signs an access token for userID valid until now+ttl.
func Issue(userID string, ttl time.Duration, now time.Time, key []byte) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" || strings.Contains(userID, ".") {
		return "", time.Time{}, fmt.Errorf("issue: invalid user id %q", userID)
	}
	if len(key) == 0 {
		return "", time.Time{}, ErrHMACKeyMissing
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	exp := now.Add(ttl).UTC()
	base := userID + "." + strconv.FormatInt(exp.Unix(), 10)
	return base + "." + signHex(base, key), exp, nil
}

// Parse verifies a token and returns the embedded user id.
// Expiry is checked against now; signature comparison is constant time.
func Parse(tok string, now time.Time, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrHMACKeyMissing
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrMalformedToken
	}

	base := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(signHex(base, key)), []byte(parts[2])) {
		return "", ErrBadSignature
	}

	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrMalformedToken
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", ErrExpiredToken
	}

	return parts[0], nil
}

func signHex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}
