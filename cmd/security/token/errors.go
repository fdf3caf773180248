package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrMalformedToken  = errors.New("malformed token")
	ErrBadSignature    = errors.New("bad token signature")
	ErrExpiredToken    = errors.New("expired token")
)
