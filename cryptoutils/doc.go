// Package cryptoutils provides the shard encryption layer and token
// primitives for the deadhand core.
//
// The custodial share is sealed with AES-256-GCM under a per-vault key
// derived from the operator master key via HKDF-SHA256. A fresh nonce is
// generated for every seal; the authentication tag is verified before any
// decrypted byte is used, and a tag mismatch is a hard failure
// (interfaces.ErrAuthenticationFailed), never a warning.
//
// Heartbeat tokens are unguessable bearer credentials issued once at vault
// creation. Only their SHA-256 hash is stored; verification compares in
// constant time.
//
// Nothing in this package logs or persists plaintext share material.
package cryptoutils
