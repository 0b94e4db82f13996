package chat

import (
	"strings"
	"testing"

	"parley/internal/types"
)

func TestGuardActivateClearsStore(t *testing.T) {
	store := NewStore()
	guard := NewSessionGuard(store)

	guard.Activate("s1")
	store.UserMessageQueued("u-1", "hello", nil)
	epochBefore := store.Epoch()

	guard.Activate("s2")
	if store.Epoch() != epochBefore+1 {
		t.Fatalf("expected epoch bump on activate")
	}
	if len(store.Messages()) != 0 {
		t.Fatalf("expected store cleared on activate")
	}
	if guard.ViewedKey() != "s2" || store.ActiveSessionKey() != "s2" {
		t.Fatalf("expected viewed and active keys to agree")
	}
	if !guard.RenderReady() {
		t.Fatalf("expected render ready after synchronous activate")
	}
}

func TestGuardRenderNotReadyWhenKeysDiverge(t *testing.T) {
	store := NewStore()
	guard := NewSessionGuard(store)
	guard.Activate("s1")

	// Simulates the store being repointed behind the guard's back.
	store.SessionCleared("s2")
	if guard.RenderReady() {
		t.Fatalf("expected render gate closed when keys diverge")
	}
}

func TestGuardResolveOptimistic(t *testing.T) {
	guard := NewSessionGuard(NewStore())
	guard.SetOptimistic(OptimisticSession{
		Key:          "new-session",
		Title:        "hello there, this is the first message",
		FirstMessage: "hello there, this is the first message",
	})

	// History for a different session never resolves it.
	guard.ResolveOptimistic("other", []types.Message{
		{Role: types.RoleUser, Text: "hello there, this is the first message"},
	})
	if _, ok := guard.Optimistic(); !ok {
		t.Fatalf("expected optimistic record kept for unrelated session")
	}

	// Assistant text matching the probe does not count.
	guard.ResolveOptimistic("new-session", []types.Message{
		{Role: types.RoleAssistant, Text: "hello there, this is the first message"},
	})
	if _, ok := guard.Optimistic(); !ok {
		t.Fatalf("expected optimistic record kept without a user match")
	}

	// A user message carrying the probe as a prefix resolves it, even when
	// the persisted text grew a suffix.
	guard.ResolveOptimistic("new-session", []types.Message{
		{Role: types.RoleUser, Text: "hello there, this is the first message with trailing marker"},
	})
	if _, ok := guard.Optimistic(); ok {
		t.Fatalf("expected optimistic record resolved")
	}
}

func TestGuardResolveOptimisticLongFirstMessage(t *testing.T) {
	long := strings.Repeat("a", 200)
	guard := NewSessionGuard(NewStore())
	guard.SetOptimistic(OptimisticSession{Key: "k", FirstMessage: long})

	// Persisted text shares only the capped prefix.
	persisted := long[:maxOptimisticProbeLen] + " truncated by sanitization"
	guard.ResolveOptimistic("k", []types.Message{{Role: types.RoleUser, Text: persisted}})
	if _, ok := guard.Optimistic(); ok {
		t.Fatalf("expected capped-prefix match to resolve")
	}
}

func TestDisplayKey(t *testing.T) {
	optimistic := &OptimisticSession{Key: "sess-9", FirstMessage: "first words"}
	tests := []struct {
		name       string
		message    types.Message
		optimistic *OptimisticSession
		want       string
	}{
		{
			name:       "matching user message maps to first key",
			message:    types.Message{ID: "h-1000-0", Role: types.RoleUser, Text: "first words"},
			optimistic: optimistic,
			want:       "first-sess-9",
		},
		{
			name:       "optimistic local bubble maps to the same key",
			message:    types.Message{ID: "u-abc", Role: types.RoleUser, Text: "first words"},
			optimistic: optimistic,
			want:       "first-sess-9",
		},
		{
			name:       "assistant message keeps its id",
			message:    types.Message{ID: "a-r1-0", Role: types.RoleAssistant, Text: "first words"},
			optimistic: optimistic,
			want:       "a-r1-0",
		},
		{
			name:    "no optimistic record keeps the id",
			message: types.Message{ID: "u-abc", Role: types.RoleUser, Text: "first words"},
			want:    "u-abc",
		},
		{
			name:       "non-matching text keeps the id",
			message:    types.Message{ID: "u-def", Role: types.RoleUser, Text: "unrelated"},
			optimistic: optimistic,
			want:       "u-def",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayKey(tt.message, tt.optimistic); got != tt.want {
				t.Fatalf("DisplayKey = %q, want %q", got, tt.want)
			}
		})
	}
}
