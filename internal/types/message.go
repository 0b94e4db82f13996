package types

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnknown   Role = "unknown"
)

type Attachment struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	DataURL  string `json:"dataUrl,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolResult struct {
	CallID  string `json:"callId"`
	Text    string `json:"text,omitempty"`
	IsError bool   `json:"isError,omitempty"`
}

// Message is one displayable transcript entry. IDs are "u-<uuid>" for
// optimistic sends, "h-<ts>-<index>" for history entries and
// "a-<runId>-<seq>" for finalized streamed replies.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Timestamp   int64        `json:"timestamp,omitempty"`
	RunID       string       `json:"runId,omitempty"`
	Pending     bool         `json:"pending,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}
