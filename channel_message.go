package sessionguard

import (
	"encoding/json"
	"time"
)

// invalidateEvent is the closed set of event kinds a channelMessage can
// carry, per §4.3's subscriber rules.
type invalidateEvent string

const (
	eventUpdated     invalidateEvent = "updated"
	eventDeleted     invalidateEvent = "deleted"
	eventRegenerated invalidateEvent = "regenerated"
)

// channelMessage is the compact, self-describing invalidation record
// published on the cluster channel (§6's wire format), shaped as a JSON
// object rather than dcache's delimited id+keys string so unknown fields
// can be added later without a version bump breaking older readers.
type channelMessage struct {
	Version   int             `json:"v"`
	Event     invalidateEvent `json:"event"`
	SessionID string          `json:"id"`
	OldID     string          `json:"old_id,omitempty"`
	NodeID    string          `json:"node"`
	Timestamp int64           `json:"ts"` // unix milliseconds
}

func newChannelMessage(event invalidateEvent, sessionID, oldID, nodeID string) channelMessage {
	return channelMessage{
		Version:   1,
		Event:     event,
		SessionID: sessionID,
		OldID:     oldID,
		NodeID:    nodeID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (m channelMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}

// decodeChannelMessage parses a raw pub/sub payload. A parse failure is
// reported to the caller so it can bump an error metric and move on,
// never terminating the subscriber (§4.3).
func decodeChannelMessage(payload []byte) (channelMessage, error) {
	var m channelMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return channelMessage{}, err
	}
	return m, nil
}
