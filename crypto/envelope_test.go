package crypto

import (
	"bytes"
	"strings"
	"testing"
)

type fakePayload struct {
	Data string `json:"data"`
}

func testEnvelope(t *testing.T, encrypt, compress bool) *Envelope {
	t.Helper()
	key := NormalizeKey([]byte("a-test-secret-value"))
	var aead *AEAD
	if encrypt {
		aead = NewAEAD(key)
	}
	digest := NewDigest(key, "hmac-sha256", false)
	return NewEnvelope(aead, digest, compress, 16)
}

func TestEnvelopeRoundTripPlain(t *testing.T) {
	env := testEnvelope(t, false, false)
	encoded, err := env.Encode("session-aaaaaaaaaaaaaaaa", fakePayload{Data: "hello world"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out fakePayload
	if err := env.Decode("session-aaaaaaaaaaaaaaaa", encoded, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Data != "hello world" {
		t.Errorf("got %q, want %q", out.Data, "hello world")
	}
}

func TestEnvelopeRoundTripEncryptedAndCompressed(t *testing.T) {
	env := testEnvelope(t, true, true)
	long := strings.Repeat("x", 256)
	encoded, err := env.Encode("session-bbbbbbbbbbbbbbbb", fakePayload{Data: long})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Contains(encoded, []byte(long)) {
		t.Error("expected encrypted envelope to not contain plaintext")
	}
	var out fakePayload
	if err := env.Decode("session-bbbbbbbbbbbbbbbb", encoded, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Data != long {
		t.Error("round-tripped payload does not match original")
	}
}

func TestEnvelopeDetectsTampering(t *testing.T) {
	env := testEnvelope(t, true, false)
	encoded, err := env.Encode("session-cccccccccccccccc", fakePayload{Data: "secret"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded[len(encoded)/2] ^= 0xFF

	var out fakePayload
	err = env.Decode("session-cccccccccccccccc", encoded, &out)
	if err == nil {
		t.Fatal("expected tampering to be detected")
	}
}

func TestEnvelopeRejectsWrongSessionIDBinding(t *testing.T) {
	env := testEnvelope(t, true, false)
	encoded, err := env.Encode("session-dddddddddddddddd", fakePayload{Data: "secret"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out fakePayload
	err = env.Decode("session-eeeeeeeeeeeeeeee", encoded, &out)
	if err == nil {
		t.Fatal("expected decode under a different session id to fail")
	}
}

func TestDigestFallbackAcceptsLegacyAlgorithm(t *testing.T) {
	key := NormalizeKey([]byte("rotation-test-secret"))
	oldDigest := NewDigest(key, "hmac-sha1", false)
	newDigest := NewDigest(key, "hmac-sha256", true)

	data := []byte("payload-under-rotation")
	tag, err := oldDigest.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := newDigest.Verify(data, tag); err != nil {
		t.Fatalf("expected fallback verify to accept legacy tag: %v", err)
	}
}

func TestDigestWithoutFallbackRejectsLegacyAlgorithm(t *testing.T) {
	key := NormalizeKey([]byte("rotation-test-secret"))
	oldDigest := NewDigest(key, "hmac-sha1", false)
	newDigest := NewDigest(key, "hmac-sha256", false)

	data := []byte("payload-under-rotation")
	tag, err := oldDigest.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := newDigest.Verify(data, tag); err == nil {
		t.Fatal("expected verify without fallback enabled to reject legacy tag")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("compress me please ", 50))
	compressed, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Error("expected compression to shrink repetitive input")
	}
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, original) {
		t.Error("decompressed output does not match original")
	}
}
