package chat

import (
	"strings"
	"sync"

	"parley/internal/types"
)

// SessionGuard invalidates in-flight asynchronous work from a previous
// session when the user navigates before that work completes. It also
// bridges "message sent, navigating to the not-yet-existing session" to
// "history confirms it exists" via a transient optimistic record held
// outside the store.
type SessionGuard struct {
	mu         sync.Mutex
	store      *Store
	viewedKey  string
	optimistic *OptimisticSession
}

// OptimisticSession is the provisional record of a session that was just
// created locally and has not yet appeared in persisted history.
type OptimisticSession struct {
	Key          string
	Title        string
	FirstMessage string
	Attachments  []types.Attachment
}

func NewSessionGuard(store *Store) *SessionGuard {
	return &SessionGuard{store: store}
}

// Activate records the newly viewed session key and synchronously clears
// the store before any history fetch for the new key can be issued. The
// epoch established here is what an outstanding fetch for the previous
// session will fail to validate against.
func (g *SessionGuard) Activate(sessionKey string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.viewedKey = sessionKey
	g.mu.Unlock()
	if g.store != nil {
		g.store.SessionCleared(sessionKey)
	}
}

func (g *SessionGuard) ViewedKey() string {
	if g == nil {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewedKey
}

// RenderReady reports whether the store's data belongs to the session the
// user is looking at. Consumers must not paint transcript state while this
// is false; it guards the render window between a navigation and the
// clear catching up.
func (g *SessionGuard) RenderReady() bool {
	if g == nil || g.store == nil {
		return false
	}
	return g.store.ActiveSessionKey() == g.ViewedKey()
}

func (g *SessionGuard) SetOptimistic(record OptimisticSession) {
	if g == nil || record.Key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := record
	copied.Attachments = append([]types.Attachment{}, record.Attachments...)
	g.optimistic = &copied
}

func (g *SessionGuard) Optimistic() (OptimisticSession, bool) {
	if g == nil {
		return OptimisticSession{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.optimistic == nil {
		return OptimisticSession{}, false
	}
	return *g.optimistic, true
}

// ResolveOptimistic clears the optimistic record once a history message
// for that exact session key matches the optimistic text by prefix.
func (g *SessionGuard) ResolveOptimistic(sessionKey string, messages []types.Message) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.optimistic == nil || g.optimistic.Key != sessionKey {
		return
	}
	probe := optimisticProbe(g.optimistic.FirstMessage)
	for _, message := range messages {
		if message.Role != types.RoleUser {
			continue
		}
		if probe == "" || strings.HasPrefix(strings.TrimSpace(message.Text), probe) {
			g.optimistic = nil
			return
		}
	}
}

const maxOptimisticProbeLen = 64

// optimisticProbe caps the match prefix; sanitization may shorten the
// persisted text relative to what was typed.
func optimisticProbe(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxOptimisticProbeLen {
		return trimmed
	}
	return trimmed[:maxOptimisticProbeLen]
}
