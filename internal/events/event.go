// Package events implements the append-only session event log (spec §4.6):
// every staged-graph node entry and exit emits a small, bounded event,
// durably appended keyed by (session_id, seq) and optionally mirrored to a
// live subscriber stream. The SSE transport itself is out of scope here;
// this package only owns the durable log and the optional Redis Pub/Sub
// fanout a transport would subscribe to.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle phase an event reports.
type Status string

const (
	StatusStart     Status = "start"
	StatusEnd       Status = "end"
	StatusError     Status = "error"
	StatusInterrupt Status = "interrupt"
	StatusTimeout   Status = "timeout"
)

// MaxPayloadBytes bounds an event's PayloadJSON (spec §6: "payload is
// bounded (≤ 4 KiB)").
const MaxPayloadBytes = 4096

// Event is one append-only log entry. PayloadJSON references
// artifacts/facts keys rather than embedding raw blobs (spec §4.6).
type Event struct {
	SessionID  string    `json:"session_id" bson:"session_id"`
	Seq        int64     `json:"seq" bson:"seq"`
	Node       string    `json:"node" bson:"node"`
	Phase      string    `json:"phase" bson:"phase"`
	Status     Status    `json:"status" bson:"status"`
	DurationMS int64     `json:"duration_ms" bson:"duration_ms"`
	Summary    string    `json:"summary" bson:"summary"`
	PayloadJSON string   `json:"payload_json,omitempty" bson:"payload_json,omitempty"`
	EmittedAt  time.Time `json:"emitted_at" bson:"emitted_at"`
}

// NewPayload marshals a small reference object (e.g. {"facts_key":
// "target.chatflow_id"}) to JSON, truncating defensively if it somehow
// exceeds MaxPayloadBytes; callers are expected to pass only key
// references, never raw artifact contents.
func NewPayload(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(b) > MaxPayloadBytes {
		return fmt.Sprintf(`{"truncated":true,"original_bytes":%d}`, len(b))
	}
	return string(b)
}
