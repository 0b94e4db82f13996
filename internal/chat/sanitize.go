package chat

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"parley/internal/types"
)

// The gateway injects machine-readable markers into raw message text
// before persisting it. None of them are user-authored, so all of them
// are stripped (or converted into structured data) before display.

const untrustedMetadataPrefix = "[untrusted metadata]"

const mediaReplyHint = "You can reply with media by attaching files to your message."

var (
	mediaAttachedRe  = regexp.MustCompile(`\[media attached(?: \d+/\d+)?: ([^\[\]]+?) \(([^()]+)\)\]`)
	mediaCountOnlyRe = regexp.MustCompile(`\[media attached: \d+ files?\]`)
	legacyAttachedRe = regexp.MustCompile(`\[Attached: ([^\[\]]+?) \(([^()]+)\)\]`)
	fileBlockRe      = regexp.MustCompile(`(?s)<file\b[^>]*>.*?</file>`)
	messageIDLineRe  = regexp.MustCompile(`(?m)^\s*\[message_id:[^\]]*\]\s*$`)
	messageIDRe      = regexp.MustCompile(`\[message_id:[^\]]*\]`)
	dateHeaderRe     = regexp.MustCompile(`^\[[^\[\]]*\d{1,2}:\d{2}[^\[\]]*\]\s*`)
)

// SanitizeText strips injected markers from raw message text and returns
// the display string together with any attachments described by markers.
func SanitizeText(raw string) (string, []types.Attachment) {
	text := stripUntrustedMetadata(raw)
	text = strings.TrimLeft(text, " \t\r\n")
	text = dateHeaderRe.ReplaceAllString(text, "")

	var attachments []types.Attachment
	text = mediaAttachedRe.ReplaceAllStringFunc(text, func(marker string) string {
		groups := mediaAttachedRe.FindStringSubmatch(marker)
		if len(groups) == 3 {
			attachments = append(attachments, attachmentFromMarker(groups[1], groups[2]))
		}
		return ""
	})
	// Count-only markers carry no path, so there is nothing to keep.
	text = mediaCountOnlyRe.ReplaceAllString(text, "")
	text = legacyAttachedRe.ReplaceAllStringFunc(text, func(marker string) string {
		groups := legacyAttachedRe.FindStringSubmatch(marker)
		if len(groups) == 3 {
			attachments = append(attachments, attachmentFromMarker(groups[1], groups[2]))
		}
		return ""
	})

	text = strings.ReplaceAll(text, mediaReplyHint, "")
	text = fileBlockRe.ReplaceAllString(text, "")
	text = messageIDLineRe.ReplaceAllString(text, "")
	text = messageIDRe.ReplaceAllString(text, "")

	return strings.TrimSpace(text), attachments
}

func stripUntrustedMetadata(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, untrustedMetadataPrefix) {
		return text
	}
	rest := strings.TrimLeft(trimmed[len(untrustedMetadataPrefix):], " \t\r\n")
	if strings.HasPrefix(rest, "{") {
		if end := matchBraceBlock(rest); end > 0 {
			rest = rest[end:]
		}
	}
	return rest
}

// matchBraceBlock returns the index just past the JSON object starting at
// text[0] == '{', or 0 when the braces never balance.
func matchBraceBlock(text string) int {
	depth := 0
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}

func attachmentFromMarker(filePath, mimeType string) types.Attachment {
	kind := "file"
	if strings.HasPrefix(mimeType, "image/") {
		kind = "image"
	}
	return types.Attachment{
		Type:     kind,
		MimeType: strings.TrimSpace(mimeType),
		FileName: path.Base(strings.TrimSpace(filePath)),
	}
}

// ParseRole narrows a raw role value. "toolResult" is recognized so the
// caller can fold those entries into the preceding assistant message; it
// never becomes an independent transcript entry.
func ParseRole(raw any) types.Role {
	switch strings.ToLower(strings.TrimSpace(asString(raw))) {
	case "user":
		return types.RoleUser
	case "assistant", "agent":
		return types.RoleAssistant
	case "system":
		return types.RoleSystem
	default:
		return types.RoleUnknown
	}
}

func isToolResultRole(raw any) bool {
	return strings.EqualFold(strings.TrimSpace(asString(raw)), "toolresult")
}

// ParseHistoryEntry converts one raw history record into a Message.
// Returns false when the record should be dropped.
func ParseHistoryEntry(item map[string]any, index int, classifier HeartbeatClassifier) (types.Message, bool) {
	if item == nil {
		return types.Message{}, false
	}
	rawText := asText(item["content"])
	if rawText == "" {
		rawText = asText(item["text"])
	}
	text, markerAttachments := SanitizeText(rawText)
	if classifier != nil && classifier.IsHeartbeat(text) {
		return types.Message{}, false
	}

	attachments := append(markerAttachments, parseAttachmentList(item["attachments"])...)
	toolCalls := parseToolCallList(item["toolCalls"])
	toolResults := parseToolResultList(item["toolResults"])
	if text == "" && len(attachments) == 0 && len(toolCalls) == 0 && len(toolResults) == 0 {
		return types.Message{}, false
	}

	ts := asInt64(item["timestamp"])
	if ts == 0 {
		ts = asInt64(item["ts"])
	}
	return types.Message{
		ID:          HistoryMessageID(ts, index),
		Role:        ParseRole(item["role"]),
		Text:        text,
		Timestamp:   ts,
		Attachments: attachments,
		ToolCalls:   toolCalls,
		ToolResults: toolResults,
	}, true
}

// ParseHistory converts a raw history payload into transcript messages.
// Heartbeat traffic and empty records are dropped; toolResult-role records
// attach to the immediately preceding assistant message when one exists.
func ParseHistory(items []map[string]any, classifier HeartbeatClassifier) []types.Message {
	messages := make([]types.Message, 0, len(items))
	for index, item := range items {
		if item == nil {
			continue
		}
		if isToolResultRole(item["role"]) {
			results := parseToolResultList(item["toolResults"])
			if len(results) == 0 {
				if text, _ := SanitizeText(asText(item["content"])); text != "" {
					results = append(results, types.ToolResult{
						CallID: asString(item["toolCallId"]),
						Text:   text,
					})
				}
			}
			if len(results) == 0 {
				continue
			}
			for i := len(messages) - 1; i >= 0; i-- {
				if messages[i].Role == types.RoleAssistant {
					messages[i].ToolResults = append(messages[i].ToolResults, results...)
					break
				}
			}
			continue
		}
		if message, ok := ParseHistoryEntry(item, index, classifier); ok {
			messages = append(messages, message)
		}
	}
	return messages
}

func parseAttachmentList(raw any) []types.Attachment {
	var attachments []types.Attachment
	for _, entry := range asSlice(raw) {
		m := asMap(entry)
		if m == nil {
			continue
		}
		attachment := types.Attachment{
			Type:     strings.TrimSpace(asString(m["type"])),
			MimeType: strings.TrimSpace(asString(m["mimeType"])),
			FileName: strings.TrimSpace(asString(m["fileName"])),
			DataURL:  strings.TrimSpace(asString(m["dataUrl"])),
		}
		if attachment.Type == "" && attachment.MimeType == "" && attachment.FileName == "" && attachment.DataURL == "" {
			continue
		}
		if attachment.Type == "" {
			attachment.Type = "file"
			if strings.HasPrefix(attachment.MimeType, "image/") {
				attachment.Type = "image"
			}
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

func parseToolCallList(raw any) []types.ToolCall {
	var calls []types.ToolCall
	for _, entry := range asSlice(raw) {
		m := asMap(entry)
		if m == nil {
			continue
		}
		call := types.ToolCall{
			ID:        strings.TrimSpace(asString(m["id"])),
			Name:      strings.TrimSpace(asString(m["name"])),
			Arguments: asArguments(m["arguments"]),
		}
		if call.ID == "" && call.Name == "" {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

func parseToolResultList(raw any) []types.ToolResult {
	var results []types.ToolResult
	for _, entry := range asSlice(raw) {
		m := asMap(entry)
		if m == nil {
			continue
		}
		result := types.ToolResult{
			CallID:  strings.TrimSpace(asString(m["callId"])),
			Text:    asText(m["text"]),
			IsError: asBool(m["isError"]),
		}
		if result.CallID == "" && result.Text == "" {
			continue
		}
		results = append(results, result)
	}
	return results
}

// ExtractMessageText pulls the display text out of a stream event's
// message payload.
func ExtractMessageText(message map[string]any) string {
	if message == nil {
		return ""
	}
	if text := asText(message["text"]); text != "" {
		return text
	}
	return asText(message["content"])
}

// ExtractMessageToolCalls pulls embedded tool calls out of a final stream
// event's message payload.
func ExtractMessageToolCalls(message map[string]any) []types.ToolCall {
	if message == nil {
		return nil
	}
	return parseToolCallList(message["toolCalls"])
}

// HistoryMessageID builds the server-shaped id for a history entry.
func HistoryMessageID(ts int64, index int) string {
	return fmt.Sprintf("h-%d-%d", ts, index)
}
