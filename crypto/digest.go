package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
)

// ErrDecryptFailed covers any AEAD authentication failure, truncated
// envelope, or key mismatch — deliberately undifferentiated so callers
// can't build a decryption oracle out of distinct error messages.
var ErrDecryptFailed = errors.New("sessionguard/crypto: decrypt failed")

// ErrDigestMismatch is returned when the outer MAC over the envelope
// doesn't match, under either the current or (if enabled) fallback
// algorithm.
var ErrDigestMismatch = errors.New("sessionguard/crypto: digest mismatch")

// digestFunc resolves an algorithm id (spec §6's DigestAlgorithm) to a
// hash.Hash constructor for HMAC.
func digestFunc(algorithm string) (func() hash.Hash, bool) {
	switch algorithm {
	case "hmac-sha256", "":
		return sha256.New, true
	case "hmac-sha1":
		return sha1.New, true
	default:
		return nil, false
	}
}

// Digest is the outer rotatable MAC scheme: sealed at rest under
// "current", checked against "current" and, if DigestFallback is set,
// one legacy algorithm — so a key or algorithm rotation can run with
// both old and new readers live simultaneously (spec §6's
// digest_algorithm / digest_fallback pair is exactly a one-step rotation
// ladder, the same shape as paulround2tele-studio's config ladder but
// applied to crypto parameters instead of session settings).
type Digest struct {
	key       []byte
	current   string
	fallback  string
	useFallback bool
}

// NewDigest builds a Digest keyed by key, using current as the signing
// algorithm. fallback is only consulted on verification when
// useFallback is true, and is fixed to "hmac-sha1" (the one legacy
// scheme carried forward) unless current already is.
func NewDigest(key []byte, current string, useFallback bool) *Digest {
	fallback := "hmac-sha1"
	if current == fallback {
		fallback = "hmac-sha256"
	}
	return &Digest{key: key, current: current, fallback: fallback, useFallback: useFallback}
}

// Sign computes the current algorithm's MAC over data, prefixed with a
// one-byte algorithm tag so Verify knows which hash to check first.
func (d *Digest) Sign(data []byte) ([]byte, error) {
	return d.signWith(d.current, data)
}

func (d *Digest) signWith(algorithm string, data []byte) ([]byte, error) {
	newHash, ok := digestFunc(algorithm)
	if !ok {
		return nil, errors.New("sessionguard/crypto: unknown digest algorithm " + algorithm)
	}
	mac := hmac.New(newHash, d.key)
	mac.Write(data)
	sum := mac.Sum(nil)
	tagged := make([]byte, 0, len(sum)+1)
	tagged = append(tagged, algorithmTag(algorithm))
	tagged = append(tagged, sum...)
	return tagged, nil
}

// Verify checks tag against data under the current algorithm, falling
// back to the legacy algorithm only if useFallback is set and the tag
// itself claims the fallback algorithm id.
func (d *Digest) Verify(data, tag []byte) error {
	if len(tag) < 1 {
		return ErrDigestMismatch
	}
	algorithm, ok := algorithmFromTag(tag[0])
	if !ok {
		return ErrDigestMismatch
	}
	if algorithm != d.current {
		if !d.useFallback || algorithm != d.fallback {
			return ErrDigestMismatch
		}
	}
	expected, err := d.signWith(algorithm, data)
	if err != nil {
		return ErrDigestMismatch
	}
	if !hmac.Equal(expected, tag) {
		return ErrDigestMismatch
	}
	return nil
}

func algorithmTag(algorithm string) byte {
	switch algorithm {
	case "hmac-sha1":
		return 1
	default:
		return 2 // hmac-sha256
	}
}

func algorithmFromTag(tag byte) (string, bool) {
	switch tag {
	case 1:
		return "hmac-sha1", true
	case 2:
		return "hmac-sha256", true
	default:
		return "", false
	}
}
