package chat

import (
	"testing"

	"parley/internal/types"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantText   string
		wantAttach int
		wantName   string
		wantMime   string
		wantType   string
	}{
		{
			name:     "plain text untouched",
			raw:      "hello world",
			wantText: "hello world",
		},
		{
			name:       "media marker becomes attachment",
			raw:        "hello [media attached: /tmp/up/cat.png (image/png)]",
			wantText:   "hello",
			wantAttach: 1,
			wantName:   "cat.png",
			wantMime:   "image/png",
			wantType:   "image",
		},
		{
			name:       "indexed media marker",
			raw:        "[media attached 1/2: /tmp/a.pdf (application/pdf)] see this",
			wantText:   "see this",
			wantAttach: 1,
			wantName:   "a.pdf",
			wantMime:   "application/pdf",
			wantType:   "file",
		},
		{
			name:     "count-only marker discarded",
			raw:      "look [media attached: 2 files]",
			wantText: "look",
		},
		{
			name:       "legacy attached marker",
			raw:        "[Attached: notes.txt (text/plain)] ok",
			wantText:   "ok",
			wantAttach: 1,
			wantName:   "notes.txt",
			wantMime:   "text/plain",
			wantType:   "file",
		},
		{
			name:     "file block stripped",
			raw:      "before <file name=\"x.go\">package x\n</file> after",
			wantText: "before  after",
		},
		{
			name:     "message id line stripped",
			raw:      "reply\n[message_id: abc-123]",
			wantText: "reply",
		},
		{
			name:     "untrusted metadata with json block",
			raw:      "[untrusted metadata] {\"from\":\"+123\",\"note\":\"a } in string\"} actual text",
			wantText: "actual text",
		},
		{
			name:     "date header stripped",
			raw:      "[Mon 2026-08-31 14:22 UTC] good morning",
			wantText: "good morning",
		},
		{
			name:     "media reply hint stripped",
			raw:      "done\nYou can reply with media by attaching files to your message.",
			wantText: "done",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, attachments := SanitizeText(tt.raw)
			if text != tt.wantText {
				t.Fatalf("text = %q, want %q", text, tt.wantText)
			}
			if len(attachments) != tt.wantAttach {
				t.Fatalf("attachments = %+v, want %d", attachments, tt.wantAttach)
			}
			if tt.wantAttach > 0 {
				got := attachments[0]
				if got.FileName != tt.wantName || got.MimeType != tt.wantMime || got.Type != tt.wantType {
					t.Fatalf("attachment = %+v", got)
				}
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  any
		want types.Role
	}{
		{"user", types.RoleUser},
		{"User ", types.RoleUser},
		{"assistant", types.RoleAssistant},
		{"agent", types.RoleAssistant},
		{"system", types.RoleSystem},
		{"weird", types.RoleUnknown},
		{nil, types.RoleUnknown},
		{42, types.RoleUnknown},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.raw); got != tt.want {
			t.Fatalf("ParseRole(%v) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseHistory(t *testing.T) {
	classifier := DefaultHeartbeatClassifier()
	items := []map[string]any{
		{"role": "user", "content": "hi [media attached: /a/b.png (image/png)]", "timestamp": float64(1000)},
		{"role": "assistant", "content": "Read HEARTBEAT.md and do nothing else.", "timestamp": float64(1500)},
		{"role": "assistant", "content": "hello!", "timestamp": float64(2000)},
		{"role": "toolResult", "content": "42 lines", "toolCallId": "t1", "timestamp": float64(2100)},
		{"role": "user", "content": "   ", "timestamp": float64(2200)},
		nil,
	}

	messages := ParseHistory(items, classifier)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", messages)
	}

	first := messages[0]
	if first.ID != "h-1000-0" || first.Role != types.RoleUser || first.Text != "hi" {
		t.Fatalf("unexpected first message: %+v", first)
	}
	if len(first.Attachments) != 1 || first.Attachments[0].FileName != "b.png" || first.Attachments[0].MimeType != "image/png" {
		t.Fatalf("unexpected attachments: %+v", first.Attachments)
	}

	second := messages[1]
	if second.ID != "h-2000-2" || second.Text != "hello!" {
		t.Fatalf("unexpected second message: %+v", second)
	}
	if len(second.ToolResults) != 1 || second.ToolResults[0].CallID != "t1" || second.ToolResults[0].Text != "42 lines" {
		t.Fatalf("expected toolResult folded into assistant message, got %+v", second.ToolResults)
	}
}

func TestParseHistoryEntryStructuredFields(t *testing.T) {
	item := map[string]any{
		"role":      "assistant",
		"content":   []any{map[string]any{"text": "part one"}, map[string]any{"text": "part two"}},
		"timestamp": float64(3000),
		"toolCalls": []any{
			map[string]any{"id": "t1", "name": "read_file", "arguments": map[string]any{"path": "a.txt"}},
		},
		"attachments": []any{
			map[string]any{"mimeType": "image/jpeg", "fileName": "x.jpg"},
		},
	}
	message, ok := ParseHistoryEntry(item, 4, nil)
	if !ok {
		t.Fatalf("expected entry kept")
	}
	if message.Text != "part one\npart two" {
		t.Fatalf("expected content parts flattened, got %q", message.Text)
	}
	if len(message.ToolCalls) != 1 || message.ToolCalls[0].Arguments != `{"path":"a.txt"}` {
		t.Fatalf("unexpected tool calls: %+v", message.ToolCalls)
	}
	if len(message.Attachments) != 1 || message.Attachments[0].Type != "image" {
		t.Fatalf("expected image type inferred, got %+v", message.Attachments)
	}
}

func TestHeartbeatClassifier(t *testing.T) {
	classifier := DefaultHeartbeatClassifier()
	tests := []struct {
		text string
		want bool
	}{
		{"Read HEARTBEAT.md if present.", true},
		{"  HEARTBEAT_OK  ", true},
		{"HEARTBEAT", true},
		{"HEARTBEAT_OK, all good, plus more", false},
		{"hello", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := classifier.IsHeartbeat(tt.text); got != tt.want {
			t.Fatalf("IsHeartbeat(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
