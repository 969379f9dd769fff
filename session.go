// Package sessionguard implements a pluggable, type-parameterized session
// store layered with a multi-node coordination cache.
//
// A session record is any payload type T that satisfies Codec[T]: it must
// be able to encode itself to bytes, decode itself from bytes, and report
// whether it represents an authenticated session. Every record carries a
// fixed Header (session id, created/expiry timestamps, optional client
// fingerprint) alongside the caller's payload.
package sessionguard

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// sessionIDPattern is the id format every store enforces: opaque,
// URL-safe, at least 16 characters.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)

// ValidSessionID reports whether id meets the store contract's id format.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Header is the fixed metadata every session record carries regardless of
// payload type.
type Header struct {
	SessionID         string    `json:"session_id"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	ClientFingerprint string    `json:"client_fingerprint,omitempty"`
}

// Valid reports whether the header has not yet expired.
func (h Header) Valid(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

// NewHeader constructs a header with a freshly generated id and an expiry
// derived as createdAt+timeout.
func NewHeader(timeout time.Duration) (Header, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return Header{}, err
	}
	now := time.Now()
	return Header{
		SessionID: id,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}, nil
}

// GenerateSessionID returns a new opaque, URL-safe session identifier.
//
// Generated the way paulround2tele-studio/backend's
// SessionService.generateSecureSessionID does: crypto/rand bytes, hex
// encoded. Hex output is a strict subset of [A-Za-z0-9_-], so it always
// satisfies ValidSessionID.
func GenerateSessionID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessionguard: generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Codec is the capability a payload type T must provide to be stored.
// Implementations must not use runtime reflection on the hot path; a
// typical implementation is a thin json.Marshal/Unmarshal wrapper.
type Codec[T any] interface {
	// EncodePayload returns the wire representation of the payload.
	EncodePayload(v T) ([]byte, error)
	// DecodePayload reconstructs a payload from its wire representation.
	DecodePayload(data []byte) (T, error)
	// Authenticated reports whether v represents a logged-in session.
	Authenticated(v T) bool
}

// ComputeFingerprint hashes the request attributes Config selects for
// binding (§6's bind_to_ip/bind_to_user_agent) into the opaque string
// stored as Header.ClientFingerprint. Returns "" when neither flag is
// set, meaning the caller should leave ClientFingerprint empty and no
// binding check will ever fire for that record.
func ComputeFingerprint(cfg *Config, remoteIP, userAgent string) string {
	if !cfg.BindToIP && !cfg.BindToUserAgent {
		return ""
	}
	h := sha256.New()
	if cfg.BindToIP {
		h.Write([]byte(remoteIP))
	}
	h.Write([]byte{0}) // separator so "1.2.3.4"+"" can't collide with ""+"1.2.3.4"
	if cfg.BindToUserAgent {
		h.Write([]byte(userAgent))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Record is the full, in-memory shape of a session: header plus payload.
type Record[T any] struct {
	Header
	Value T
}

// Expired reports whether the record has passed its expiry relative to now.
func (r Record[T]) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
