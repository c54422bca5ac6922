package domain

import (
	"encoding/json"
	"time"
)

// Event is one unit of notifiable content produced by an event source.
// The key is unique per dispatch cycle; re-dispatching the same key is
// idempotent.
type Event struct {
	Key       string          `json:"event_key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventPayload is the JSON body stored in the events table and handed to
// the delivery channel.
type EventPayload struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Message extracts the human-readable notification text from the payload.
// A payload that fails to decode falls back to the raw bytes so a malformed
// event is still observable rather than silently dropped.
func (e Event) Message() string {
	var p EventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.Message == "" {
		return string(e.Payload)
	}
	return p.Message
}
