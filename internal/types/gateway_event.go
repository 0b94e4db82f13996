package types

import "encoding/json"

// GatewayEvent is the envelope delivered on the gateway event stream.
type GatewayEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TS      string          `json:"ts,omitempty"`
}

const (
	GatewayEventChat  = "chat"
	GatewayEventAgent = "agent"
)

// ChatEventPayload carries chat-stream events. Events are ordered per run
// by the gateway but carry no global ordering.
type ChatEventPayload struct {
	RunID        string         `json:"runId"`
	SessionKey   string         `json:"sessionKey"`
	Seq          int            `json:"seq"`
	State        string         `json:"state"`
	Message      map[string]any `json:"message,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

const (
	ChatStateDelta   = "delta"
	ChatStateFinal   = "final"
	ChatStateError   = "error"
	ChatStateAborted = "aborted"
)

// AgentEventPayload carries tool-activity events.
type AgentEventPayload struct {
	RunID      string         `json:"runId"`
	SessionKey string         `json:"sessionKey,omitempty"`
	Stream     string         `json:"stream"`
	Data       map[string]any `json:"data,omitempty"`
}
