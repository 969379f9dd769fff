package sessionguard

import (
	"testing"
	"time"
)

func TestNewChannelMessageTimestampIsUnixMilliseconds(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := newChannelMessage(eventDeleted, "abcdefghijklmnopqrst", "", "node-a")
	after := time.Now().UnixMilli()

	if msg.Timestamp < before || msg.Timestamp > after {
		t.Fatalf("expected Timestamp in [%d, %d] (unix ms), got %d", before, after, msg.Timestamp)
	}
	// A seconds-based timestamp for "now" would be roughly 1000x smaller;
	// guard against the old time.Now().Unix() regression directly.
	if msg.Timestamp < before/1000*900 {
		t.Fatalf("Timestamp %d looks like unix seconds, not milliseconds", msg.Timestamp)
	}
}

func TestChannelMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := newChannelMessage(eventRegenerated, "new-session-id-abc12", "old-session-id-xyz98", "node-b")

	raw, err := msg.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := decodeChannelMessage(raw)
	if err != nil {
		t.Fatalf("decodeChannelMessage: %v", err)
	}
	if decoded != msg {
		t.Fatalf("expected round-tripped message to match, got %+v want %+v", decoded, msg)
	}
}

func TestDecodeChannelMessageRejectsInvalidPayload(t *testing.T) {
	if _, err := decodeChannelMessage([]byte("not json")); err == nil {
		t.Fatal("expected an error decoding a malformed payload")
	}
}
