// Package capability derives the key material used by the sync client from
// a single sync key: a salted encryption key, a public account identifier
// and a private write token.
//
// The account identifier and the write token are SHA-256 digests of
// different preimages, so knowing one reveals nothing about the other.
package capability

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 cost. It must not be lowered: it is the only
	// barrier against offline guessing of weak imported keys.
	Iterations = 600_000
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	writeTokenTag = "session-sync:write:"
)

// Triple is the set of capabilities recomputed from a sync key on demand.
// It is never persisted.
type Triple struct {
	// AccountID addresses the account on read, list and lookup.
	AccountID string
	// WriteToken authorizes upsert and delete.
	WriteToken string
}

// Derive computes the account identifier and the write token for secret.
// The encryption key depends on a per-envelope salt and is derived with DeriveKey.
func Derive(secret string) Triple {
	return Triple{
		AccountID:  DeriveAccountID(secret),
		WriteToken: DeriveWriteToken(secret),
	}
}

// DeriveKey stretches secret with salt into an AES-256 key using
// PBKDF2-HMAC-SHA256.
func DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, Iterations, KeySize, sha256.New)
}

// DeriveAccountID returns the hex SHA-256 of secret.
func DeriveAccountID(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DeriveWriteToken returns the hex SHA-256 of the domain-separated secret.
func DeriveWriteToken(secret string) string {
	sum := sha256.Sum256([]byte(writeTokenTag + secret))
	return hex.EncodeToString(sum[:])
}
