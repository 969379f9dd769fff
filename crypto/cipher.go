package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD seals/opens the confidentiality layer of the envelope using
// ChaCha20-Poly1305 (golang.org/x/crypto/chacha20poly1305), the AEAD the
// retrieval pack's valkey_session.go and dcache reach for when they need
// authenticated encryption without depending on AES-NI hardware support.
type AEAD struct {
	key []byte
}

// NewAEAD wraps a 32-byte key. Panics if key is not exactly 32 bytes,
// since that indicates a programming error upstream (DeriveKey/
// NormalizeKey always produce 32 bytes).
func NewAEAD(key []byte) *AEAD {
	if len(key) != chacha20poly1305.KeySize {
		panic(fmt.Sprintf("sessionguard/crypto: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key)))
	}
	return &AEAD{key: key}
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag. aad (may be
// nil) is authenticated but not encrypted — the envelope uses it to bind
// the ciphertext to the session id so a swapped-key-same-id replay fails.
func (a *AEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(a.key)
	if err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal. Returns ErrDecryptFailed (wrapped) on any
// authentication failure, truncated input, or wrong-key condition —
// callers must not distinguish these cases, per spec §4.6's "corruption
// is not retryable".
func (a *AEAD) Open(sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(a.key)
	if err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: new aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
