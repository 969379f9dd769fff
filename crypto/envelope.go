package crypto

import (
	"encoding/json"
	"fmt"
)

const envelopeVersion byte = 1

const (
	flagCompressed byte = 1 << iota
	flagEncrypted
)

// Envelope implements the at-rest pipeline of spec §4.5: JSON encode,
// optionally deflate above a size threshold, optionally seal with AEAD,
// then sign the whole thing with a rotatable HMAC digest. The wire shape
// is:
//
//	[version byte][flags byte][body...][digest tag][tag length byte]
//
// The trailing length-prefixed tag lets Decode locate the tag without
// assuming a fixed hash size, so a digest algorithm rotation (sha1 ->
// sha256 tag length 21 -> 33 bytes) doesn't require a format version
// bump.
type Envelope struct {
	aead      *AEAD // nil when EncryptAtRest is off
	digest    *Digest
	compress  bool
	threshold int
}

// NewEnvelope builds the pipeline. aead may be nil to disable
// confidentiality (digest-only integrity), matching spec §6's
// EncryptAtRest=false default.
func NewEnvelope(aead *AEAD, digest *Digest, compress bool, threshold int) *Envelope {
	return &Envelope{aead: aead, digest: digest, compress: compress, threshold: threshold}
}

// Encode marshals v to JSON and runs it through the configured pipeline,
// binding the result to sessionID via AEAD associated data so a sealed
// blob can't be replayed under a different session id.
func (e *Envelope) Encode(sessionID string, v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sessionguard/crypto: marshal: %w", err)
	}

	var flags byte
	body := plaintext
	if e.compress && len(body) > e.threshold {
		compressed, err := Compress(body)
		if err != nil {
			return nil, err
		}
		body = compressed
		flags |= flagCompressed
	}
	if e.aead != nil {
		sealed, err := e.aead.Seal(body, []byte(sessionID))
		if err != nil {
			return nil, err
		}
		body = sealed
		flags |= flagEncrypted
	}

	payload := make([]byte, 0, len(body)+2)
	payload = append(payload, envelopeVersion, flags)
	payload = append(payload, body...)

	tag, err := e.digest.Sign(payload)
	if err != nil {
		return nil, err
	}
	if len(tag) > 255 {
		return nil, fmt.Errorf("sessionguard/crypto: digest tag too long (%d bytes)", len(tag))
	}

	out := make([]byte, 0, len(payload)+len(tag)+1)
	out = append(out, payload...)
	out = append(out, tag...)
	out = append(out, byte(len(tag)))
	return out, nil
}

// Decode reverses Encode into v, a pointer to the destination type.
// Returns ErrDigestMismatch or ErrDecryptFailed (undifferentiated to
// callers beyond Kind()) on any tamper, key-mismatch, or corruption.
func (e *Envelope) Decode(sessionID string, envelope []byte, v any) error {
	if len(envelope) < 3 {
		return ErrDigestMismatch
	}
	tagLen := int(envelope[len(envelope)-1])
	if tagLen <= 0 || tagLen >= len(envelope) {
		return ErrDigestMismatch
	}
	tag := envelope[len(envelope)-1-tagLen : len(envelope)-1]
	payload := envelope[:len(envelope)-1-tagLen]

	if err := e.digest.Verify(payload, tag); err != nil {
		return err
	}

	if len(payload) < 2 {
		return ErrDigestMismatch
	}
	flags := payload[1]
	body := payload[2:]

	if flags&flagEncrypted != 0 {
		if e.aead == nil {
			return ErrDecryptFailed
		}
		plain, err := e.aead.Open(body, []byte(sessionID))
		if err != nil {
			return err
		}
		body = plain
	}
	if flags&flagCompressed != 0 {
		plain, err := Decompress(body)
		if err != nil {
			return err
		}
		body = plain
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("sessionguard/crypto: unmarshal: %w", err)
	}
	return nil
}
