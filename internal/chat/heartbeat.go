package chat

import "strings"

// HeartbeatClassifier decides whether a piece of text is automated
// keep-alive traffic that must never surface in a human-facing transcript.
// The matching rules are literal by construction, so they live behind an
// interface and can evolve without touching transition logic.
type HeartbeatClassifier interface {
	IsHeartbeat(text string) bool
}

type defaultHeartbeatClassifier struct{}

func DefaultHeartbeatClassifier() HeartbeatClassifier {
	return defaultHeartbeatClassifier{}
}

var heartbeatPrefixes = []string{
	"Read HEARTBEAT.md",
}

var heartbeatTokens = []string{
	"HEARTBEAT_OK",
	"HEARTBEAT",
}

func (defaultHeartbeatClassifier) IsHeartbeat(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	for _, prefix := range heartbeatPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	for _, token := range heartbeatTokens {
		if trimmed == token {
			return true
		}
	}
	return false
}
