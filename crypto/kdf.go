// Package crypto implements the at-rest envelope pipeline of spec §4.5:
// JSON encode -> optional compress -> AEAD encrypt -> outer MAC digest.
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey stretches a low-entropy secret into a 32-byte AEAD key via
// PBKDF2-HMAC-SHA256, the construction golang.org/x/crypto/pbkdf2's own
// doc example uses and the one paulround2tele-studio's config package
// assumes callers already did before handing over a "secret". Iterations
// below 1 are rejected by falling back to 1 to avoid a degenerate
// zero-round derivation.
func DeriveKey(secret, salt []byte, iterations int) []byte {
	if iterations < 1 {
		iterations = 1
	}
	return pbkdf2.Key(secret, salt, iterations, 32, sha256.New)
}

// NormalizeKey returns secret unchanged if it is already 32 bytes (the
// chacha20poly1305 key size), otherwise hashes it down/up to 32 bytes with
// SHA-256. Used when UseKDF is off but the operator still supplied a
// secret of arbitrary length.
func NormalizeKey(secret []byte) []byte {
	if len(secret) == 32 {
		return secret
	}
	sum := sha256.Sum256(secret)
	return sum[:]
}
