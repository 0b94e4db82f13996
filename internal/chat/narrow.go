package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// History entries and tool-activity payloads arrive as loosely-typed
// records. Every field is narrowed defensively before the store sees it.

func asString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func asSlice(value any) []any {
	s, _ := value.([]any)
	return s
}

// asText flattens a string or a list of content parts into one string.
func asText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, entry := range v {
			if text := asString(entry); text != "" {
				parts = append(parts, text)
				continue
			}
			if m := asMap(entry); m != nil {
				if text := asString(m["text"]); text != "" {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// asArguments renders tool-call arguments as a compact JSON string.
func asArguments(value any) string {
	if value == nil {
		return ""
	}
	if text := asString(value); text != "" {
		return text
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	if string(data) == "null" || string(data) == "{}" {
		return ""
	}
	return string(data)
}
