package types

// StreamEntry is the in-progress assistant reply for one run. Text holds
// the latest cumulative snapshot; each delta replaces it wholesale.
type StreamEntry struct {
	RunID string `json:"runId"`
	Text  string `json:"text"`
}

type ToolPhase string

const (
	ToolPhaseStart  ToolPhase = "start"
	ToolPhaseUpdate ToolPhase = "update"
	ToolPhaseResult ToolPhase = "result"
)

// LiveToolCall tracks an in-flight tool invocation surfaced by the agent
// event feed before the owning assistant message is finalized.
type LiveToolCall struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	Name       string    `json:"name,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	Phase      ToolPhase `json:"phase"`
	ResultText string    `json:"resultText,omitempty"`
	IsError    bool      `json:"isError,omitempty"`
	Seq        int       `json:"seq,omitempty"`
}
