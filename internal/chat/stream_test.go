package chat

import (
	"encoding/json"
	"testing"

	"parley/internal/types"
)

func chatEvent(t *testing.T, payload types.ChatEventPayload) types.GatewayEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chat payload: %v", err)
	}
	return types.GatewayEvent{Event: types.GatewayEventChat, Payload: data}
}

func agentEvent(t *testing.T, payload types.AgentEventPayload) types.GatewayEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal agent payload: %v", err)
	}
	return types.GatewayEvent{Event: types.GatewayEventAgent, Payload: data}
}

func newTestProcessor(t *testing.T, sessionKey string) (*Processor, *Store) {
	t.Helper()
	store := NewStore()
	guard := NewSessionGuard(store)
	guard.Activate(sessionKey)
	return NewProcessor(store, guard, nil, nil), store
}

func TestProcessorDeltaThenFinal(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")

	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:      "r1",
		SessionKey: "s1",
		State:      types.ChatStateDelta,
		Message:    map[string]any{"text": "partial"},
	}))
	if text, ok := store.StreamText("r1"); !ok || text != "partial" {
		t.Fatalf("expected delta buffered, got %q ok=%v", text, ok)
	}

	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:      "r1",
		SessionKey: "s1",
		Seq:        2,
		State:      types.ChatStateFinal,
		Message:    map[string]any{"text": "full reply"},
	}))
	if _, ok := store.StreamText("r1"); ok {
		t.Fatalf("expected stream closed after final")
	}
	messages := store.Messages()
	if len(messages) != 1 || messages[0].ID != "a-r1-2" || messages[0].Text != "full reply" {
		t.Fatalf("unexpected finalized message: %+v", messages)
	}
}

func TestProcessorDropsOtherSession(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")

	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:      "r1",
		SessionKey: "s2",
		State:      types.ChatStateDelta,
		Message:    map[string]any{"text": "not for us"},
	}))
	if entries := store.StreamEntries(); len(entries) != 0 {
		t.Fatalf("expected event for other session dropped, got %+v", entries)
	}
}

func TestProcessorDropsMissingRunID(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")
	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		SessionKey: "s1",
		State:      types.ChatStateDelta,
		Message:    map[string]any{"text": "orphan"},
	}))
	if entries := store.StreamEntries(); len(entries) != 0 {
		t.Fatalf("expected event without run id dropped, got %+v", entries)
	}
}

func TestProcessorMalformedPayload(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")
	processor.HandleEvent(types.GatewayEvent{Event: types.GatewayEventChat, Payload: json.RawMessage(`{"runId":`)})
	processor.HandleEvent(types.GatewayEvent{Event: types.GatewayEventAgent, Payload: nil})
	processor.HandleEvent(types.GatewayEvent{Event: "unknown", Payload: json.RawMessage(`{}`)})
	if len(store.Messages()) != 0 || len(store.StreamEntries()) != 0 {
		t.Fatalf("expected malformed events dropped")
	}
}

func TestProcessorErrorAndAborted(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")
	store.EnsureStreamRun("r1")
	store.EnsureStreamRun("r2")
	store.ToolCallStarted("t1", "r1", "search", "")
	store.ToolCallStarted("t2", "r2", "search", "")

	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:        "r1",
		SessionKey:   "s1",
		State:        types.ChatStateError,
		ErrorMessage: "model unavailable",
	}))
	if store.Err() != "model unavailable" {
		t.Fatalf("expected error surfaced, got %q", store.Err())
	}

	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:      "r2",
		SessionKey: "s1",
		State:      types.ChatStateAborted,
	}))
	if entries := store.StreamEntries(); len(entries) != 0 {
		t.Fatalf("expected both runs closed, got %+v", entries)
	}
	if calls := store.LiveToolCalls(); len(calls) != 0 {
		t.Fatalf("expected tool invocations to end with their runs, got %+v", calls)
	}
}

func TestProcessorToolLifecycle(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")

	processor.HandleEvent(agentEvent(t, types.AgentEventPayload{
		RunID:      "r1",
		SessionKey: "s1",
		Stream:     "tool",
		Data: map[string]any{
			"phase":      "start",
			"toolCallId": "t1",
			"name":       "read_file",
			"arguments":  map[string]any{"path": "a.txt"},
		},
	}))
	calls := store.LiveToolCalls()
	if len(calls) != 1 || calls[0].Name != "read_file" || calls[0].Arguments != `{"path":"a.txt"}` {
		t.Fatalf("unexpected live call after start: %+v", calls)
	}

	processor.HandleEvent(agentEvent(t, types.AgentEventPayload{
		RunID:  "r1",
		Stream: "tool",
		Data: map[string]any{
			"phase":  "result",
			"id":     "t1",
			"result": "42 lines",
		},
	}))
	calls = store.LiveToolCalls()
	if len(calls) != 1 || calls[0].Phase != types.ToolPhaseResult || calls[0].ResultText != "42 lines" {
		t.Fatalf("unexpected live call after result: %+v", calls)
	}

	// Final without an explicit toolCallFinished for other runs: the live
	// call folds into the finalized message.
	processor.HandleEvent(chatEvent(t, types.ChatEventPayload{
		RunID:      "r1",
		SessionKey: "s1",
		Seq:        1,
		State:      types.ChatStateFinal,
		Message:    map[string]any{"text": "done"},
	}))
	messages := store.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one finalized message, got %+v", messages)
	}
	if len(messages[0].ToolCalls) != 1 || messages[0].ToolCalls[0].ID != "t1" {
		t.Fatalf("expected tool call folded, got %+v", messages[0].ToolCalls)
	}
	if len(messages[0].ToolResults) != 1 || messages[0].ToolResults[0].Text != "42 lines" {
		t.Fatalf("expected tool result folded, got %+v", messages[0].ToolResults)
	}
	if len(store.LiveToolCalls()) != 0 {
		t.Fatalf("expected live calls consumed by final")
	}
}

func TestProcessorIgnoresNonToolAgentStream(t *testing.T) {
	processor, store := newTestProcessor(t, "s1")
	processor.HandleEvent(agentEvent(t, types.AgentEventPayload{
		RunID:  "r1",
		Stream: "lifecycle",
		Data:   map[string]any{"phase": "start", "toolCallId": "t1"},
	}))
	if len(store.LiveToolCalls()) != 0 {
		t.Fatalf("expected non-tool agent stream ignored")
	}
}
