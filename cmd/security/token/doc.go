// Package token provides HMAC-signed access tokens for Dwell.
//
// A token is "<user_id>.<expiry_unix>.<sig>" where sig is the hex
// HMAC-SHA256 of "<user_id>.<expiry_unix>" under the configured key.
//
// Design goals:
// - No server-side state: verification needs only the key.
// - Stable hex signatures and constant-time comparison.
//
// Environment:
// - DWELL_TOKEN_HMAC_KEY: signing key; enforced to a minimum byte length.
package token
