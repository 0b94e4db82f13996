package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"parley/internal/logging"
	"parley/internal/types"
)

const defaultReloadTimeout = 10 * time.Second

// Processor translates gateway events into store transitions. Events for
// sessions other than the currently viewed one are ignored; the channel is
// push-only and best-effort, so there is no retry logic here — the
// post-final history reload is the correctness backstop.
type Processor struct {
	store         *Store
	viewedKey     func() string
	reconciler    *Reconciler
	reloadTimeout time.Duration
	log           logging.Logger
}

func NewProcessor(store *Store, guard *SessionGuard, reconciler *Reconciler, log logging.Logger) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	viewed := func() string { return "" }
	if guard != nil {
		viewed = guard.ViewedKey
	}
	return &Processor{
		store:         store,
		viewedKey:     viewed,
		reconciler:    reconciler,
		reloadTimeout: defaultReloadTimeout,
		log:           log,
	}
}

// HandleEvent applies one gateway event. Malformed payloads are dropped.
func (p *Processor) HandleEvent(event types.GatewayEvent) {
	if p == nil || p.store == nil {
		return
	}
	switch event.Event {
	case types.GatewayEventChat:
		p.handleChat(event.Payload)
	case types.GatewayEventAgent:
		p.handleAgent(event.Payload)
	}
}

func (p *Processor) handleChat(raw json.RawMessage) {
	var payload types.ChatEventPayload
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return
	}
	if payload.RunID == "" {
		return
	}
	if payload.SessionKey != p.viewedKey() {
		p.log.Debug("chat event for other session dropped",
			logging.F("session", payload.SessionKey),
			logging.F("run", payload.RunID))
		return
	}

	switch payload.State {
	case types.ChatStateDelta:
		p.store.StreamDeltaReceived(payload.RunID, ExtractMessageText(payload.Message))
	case types.ChatStateFinal:
		text := ExtractMessageText(payload.Message)
		calls := ExtractMessageToolCalls(payload.Message)
		p.store.StreamFinalReceived(payload.RunID, payload.Seq, text, calls)
		// The persisted record is the source of truth for finalized tool
		// outcomes, e.g. an approval resolving after the stream closed.
		p.scheduleReload(payload.SessionKey)
	case types.ChatStateError:
		p.store.StreamErrorReceived(payload.RunID, payload.ErrorMessage)
	case types.ChatStateAborted:
		p.store.StreamAborted(payload.RunID)
	}
}

func (p *Processor) handleAgent(raw json.RawMessage) {
	var payload types.AgentEventPayload
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return
	}
	if payload.Stream != "tool" {
		return
	}
	if payload.SessionKey != "" && payload.SessionKey != p.viewedKey() {
		return
	}
	data := payload.Data
	if data == nil {
		return
	}
	toolCallID := strings.TrimSpace(asString(data["toolCallId"]))
	if toolCallID == "" {
		toolCallID = strings.TrimSpace(asString(data["id"]))
	}

	switch strings.TrimSpace(asString(data["phase"])) {
	case "start":
		p.store.ToolCallStarted(toolCallID, payload.RunID, asString(data["name"]), asArguments(data["arguments"]))
	case "update":
		p.store.ToolCallUpdated(toolCallID, asArguments(data["arguments"]))
	case "result":
		result := asText(data["result"])
		if result == "" {
			result = asText(data["resultText"])
		}
		p.store.ToolCallFinished(toolCallID, result, asBool(data["isError"]))
	}
}

func (p *Processor) scheduleReload(sessionKey string) {
	if p.reconciler == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.reloadTimeout)
		defer cancel()
		if err := p.reconciler.LoadHistory(ctx, sessionKey); err != nil {
			p.log.Debug("post-final history reload failed",
				logging.F("session", sessionKey),
				logging.F("err", err))
		}
	}()
}
