package chat

import (
	"strings"

	"parley/internal/types"
)

// DisplayKey maps a message to a stable presentation key. The optimistic
// first message of a brand-new session and the history entry that later
// supersedes it resolve to the same key, so the UI never remounts that
// bubble when identities switch. This is a display concern layered over
// the store's real ids, not a store invariant.
func DisplayKey(message types.Message, optimistic *OptimisticSession) string {
	if optimistic != nil && optimistic.Key != "" && message.Role == types.RoleUser {
		probe := optimisticProbe(optimistic.FirstMessage)
		if probe != "" && strings.HasPrefix(strings.TrimSpace(message.Text), probe) {
			return "first-" + optimistic.Key
		}
	}
	return message.ID
}
