package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle stage an agent reports.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

// Event is one status update for the orchestrator.
type Event struct {
	AgentNumber int
	UserID      string
	SessionID   string
	Status      Status
	// Timestamp is Unix milliseconds. Reporter fills it when zero.
	Timestamp int64
	// Extra fields are flattened into the JSON payload, e.g. diagram_url or error.
	Extra map[string]any
}

// AgentName returns the "AgentN" label the orchestrator keys on.
func (e Event) AgentName() string {
	return fmt.Sprintf("Agent%d", e.AgentNumber)
}

// FileName returns agent_{n}_{status}_{timestamp}.json.
func (e Event) FileName() string {
	return fmt.Sprintf("agent_%d_%s_%d.json", e.AgentNumber, e.Status, e.Timestamp)
}

// Payload returns the flat map sent over the wire. Extra keys never
// override the identifying fields.
func (e Event) Payload() map[string]any {
	p := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		p[k] = v
	}
	p["agentnumber"] = e.AgentName()
	p["userID"] = e.UserID
	p["sessionID"] = e.SessionID
	p["status"] = string(e.Status)
	p["timestamp"] = e.Timestamp
	return p
}

// MarshalJSON encodes the flat payload.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}

// nowMillis is the Unix time in milliseconds.
func nowMillis(now func() time.Time) int64 {
	return now().UnixMilli()
}
