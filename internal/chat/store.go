package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"parley/internal/logging"
	"parley/internal/types"
)

// Store is the single authoritative client-side state container for one
// active chat session. Every mutation goes through a transition method;
// the mutex serializes them so consumers never observe a torn state.
// Transitions never fail: malformed input degrades to a no-op.
type Store struct {
	mu sync.Mutex

	messages         []types.Message
	streams          map[string]*types.StreamEntry
	liveToolCalls    map[string]*types.LiveToolCall
	toolSeq          int
	epoch            int64
	activeSessionKey string
	sending          bool
	lastError        string

	heartbeat HeartbeatClassifier
	now       func() time.Time
	log       logging.Logger
}

type StoreOption func(*Store)

func WithHeartbeatClassifier(classifier HeartbeatClassifier) StoreOption {
	return func(s *Store) {
		if classifier != nil {
			s.heartbeat = classifier
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStoreLogger(log logging.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		streams:       map[string]*types.StreamEntry{},
		liveToolCalls: map[string]*types.LiveToolCall{},
		heartbeat:     DefaultHeartbeatClassifier(),
		now:           time.Now,
		log:           logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionCleared empties all session data, bumps the epoch and records the
// newly active session key. Callers must invoke this synchronously before
// issuing a history fetch for the new session; the epoch captured after
// this call is what that fetch validates against.
func (s *Store) SessionCleared(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.streams = map[string]*types.StreamEntry{}
	s.liveToolCalls = map[string]*types.LiveToolCall{}
	s.epoch++
	s.activeSessionKey = sessionKey
	s.sending = false
	s.lastError = ""
	s.log.Debug("session cleared", logging.F("session", sessionKey), logging.F("epoch", s.epoch))
}

// HistoryLoaded replaces the message list with the fetched one, preserving
// local assistant messages that are strictly newer than everything fetched
// and whose text the fetch does not already contain. That text check is
// the dedup against a final stream event landing between the history
// request and its response. Leftover stream buffers are dropped; the
// persisted history supersedes them.
func (s *Store) HistoryLoaded(fetched []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxTS int64
	fetchedTexts := make(map[string]struct{}, len(fetched))
	for _, message := range fetched {
		if message.Timestamp > maxTS {
			maxTS = message.Timestamp
		}
		if message.Text != "" {
			fetchedTexts[message.Text] = struct{}{}
		}
	}

	var preserved []types.Message
	for _, message := range s.messages {
		if message.Role != types.RoleAssistant {
			continue
		}
		if message.Timestamp <= maxTS {
			continue
		}
		if _, dup := fetchedTexts[message.Text]; dup && message.Text != "" {
			continue
		}
		preserved = append(preserved, message)
	}
	sort.SliceStable(preserved, func(i, j int) bool {
		return preserved[i].Timestamp < preserved[j].Timestamp
	})

	s.messages = append(append([]types.Message{}, fetched...), preserved...)
	s.streams = map[string]*types.StreamEntry{}
}

// UserMessageQueued appends a pending optimistic user message. A second
// queue for the same local id is a no-op; pending identity is unique.
func (s *Store) UserMessageQueued(localID, text string, attachments []types.Attachment) {
	if localID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, message := range s.messages {
		if message.ID == localID {
			return
		}
	}
	s.messages = append(s.messages, types.Message{
		ID:          localID,
		Role:        types.RoleUser,
		Text:        text,
		Timestamp:   s.now().UnixMilli(),
		Pending:     true,
		Attachments: append([]types.Attachment{}, attachments...),
	})
}

// MarkUserMessageDelivered clears the pending flag exactly once.
// Unknown ids and repeat calls are no-ops.
func (s *Store) MarkUserMessageDelivered(localID string) {
	if localID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == localID {
			s.messages[i].Pending = false
			return
		}
	}
}

// EnsureStreamRun pre-creates an empty stream entry so the UI can show a
// typing indicator before the first delta arrives. Idempotent.
func (s *Store) EnsureStreamRun(runID string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[runID]; !ok {
		s.streams[runID] = &types.StreamEntry{RunID: runID}
	}
}

// StreamDeltaReceived overwrites the stream entry's text with the latest
// cumulative snapshot, creating the entry if the run is unknown.
// Heartbeat-classified text is suppressed and never creates an entry.
func (s *Store) StreamDeltaReceived(runID, text string) {
	if runID == "" {
		return
	}
	if s.heartbeat != nil && s.heartbeat.IsHeartbeat(text) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.streams[runID]
	if !ok {
		entry = &types.StreamEntry{RunID: runID}
		s.streams[runID] = entry
	}
	entry.Text = text
}

// StreamFinalReceived ends the run: the stream entry is destroyed, live
// tool invocations for the run are folded into the finalized message and
// removed, and an assistant message "a-<runId>-<seq>" is appended unless
// it would be empty.
func (s *Store) StreamFinalReceived(runID string, seq int, text string, toolCalls []types.ToolCall) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, runID)

	var live []*types.LiveToolCall
	for id, call := range s.liveToolCalls {
		if call.RunID == runID {
			live = append(live, call)
			delete(s.liveToolCalls, id)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Seq < live[j].Seq })

	merged := append([]types.ToolCall{}, toolCalls...)
	var results []types.ToolResult
	for _, call := range live {
		if !containsToolCall(merged, call.ID) {
			merged = append(merged, types.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
		}
		if call.Phase == types.ToolPhaseResult {
			results = append(results, types.ToolResult{CallID: call.ID, Text: call.ResultText, IsError: call.IsError})
		}
	}

	if s.heartbeat != nil && s.heartbeat.IsHeartbeat(text) {
		text = ""
	}
	if text == "" && len(merged) == 0 {
		return
	}
	s.messages = append(s.messages, types.Message{
		ID:          fmt.Sprintf("a-%s-%d", runID, seq),
		Role:        types.RoleAssistant,
		Text:        text,
		Timestamp:   s.now().UnixMilli(),
		RunID:       runID,
		ToolCalls:   merged,
		ToolResults: results,
	})
}

// StreamErrorReceived ends the run and surfaces the gateway's message.
// Live tool invocations for the run are dropped with it; an invocation
// never outlives its run.
func (s *Store) StreamErrorReceived(runID, errorMessage string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, runID)
	s.dropLiveToolCalls(runID)
	if errorMessage == "" {
		errorMessage = "assistant run failed"
	}
	s.lastError = errorMessage
}

// StreamAborted ends the run without surfacing an error.
func (s *Store) StreamAborted(runID string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, runID)
	s.dropLiveToolCalls(runID)
}

// StreamCleared removes the stream entry for a run whose send failed.
func (s *Store) StreamCleared(runID string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, runID)
}

// ToolCallStarted inserts or overwrites a live tool invocation.
func (s *Store) ToolCallStarted(toolCallID, runID, name, arguments string) {
	if toolCallID == "" || runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolSeq++
	s.liveToolCalls[toolCallID] = &types.LiveToolCall{
		ID:        toolCallID,
		RunID:     runID,
		Name:      name,
		Arguments: arguments,
		Phase:     types.ToolPhaseStart,
		Seq:       s.toolSeq,
	}
}

// ToolCallUpdated refreshes the arguments of a known live invocation.
func (s *Store) ToolCallUpdated(toolCallID, arguments string) {
	if toolCallID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.liveToolCalls[toolCallID]
	if !ok {
		return
	}
	call.Phase = types.ToolPhaseUpdate
	if arguments != "" {
		call.Arguments = arguments
	}
}

// ToolCallFinished records the outcome of a known live invocation.
func (s *Store) ToolCallFinished(toolCallID, resultText string, isError bool) {
	if toolCallID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.liveToolCalls[toolCallID]
	if !ok {
		return
	}
	call.Phase = types.ToolPhaseResult
	call.ResultText = resultText
	call.IsError = isError
}

// LiveToolCallsClearedForRun drops all live invocations for a run.
// Safety valve for abandoned runs.
func (s *Store) LiveToolCallsClearedForRun(runID string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLiveToolCalls(runID)
}

// dropLiveToolCalls removes all live invocations for a run. Callers hold
// the mutex.
func (s *Store) dropLiveToolCalls(runID string) {
	for id, call := range s.liveToolCalls {
		if call.RunID == runID {
			delete(s.liveToolCalls, id)
		}
	}
}

func (s *Store) SetSending(sending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = sending
}

func (s *Store) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

func (s *Store) Epoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Store) ActiveSessionKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSessionKey
}

func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Messages returns a copy of the transcript in insertion order.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message{}, s.messages...)
}

// StreamEntries returns a copy of the active stream buffers, ordered by
// run id for deterministic rendering.
func (s *Store) StreamEntries() []types.StreamEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]types.StreamEntry, 0, len(s.streams))
	for _, entry := range s.streams {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RunID < entries[j].RunID })
	return entries
}

// StreamText reports the buffered text for a run, if the run is live.
func (s *Store) StreamText(runID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.streams[runID]
	if !ok {
		return "", false
	}
	return entry.Text, true
}

// LiveToolCalls returns a copy of the in-flight tool invocations in start
// order.
func (s *Store) LiveToolCalls() []types.LiveToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]types.LiveToolCall, 0, len(s.liveToolCalls))
	for _, call := range s.liveToolCalls {
		calls = append(calls, *call)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Seq < calls[j].Seq })
	return calls
}

func containsToolCall(calls []types.ToolCall, id string) bool {
	if id == "" {
		return false
	}
	for _, call := range calls {
		if call.ID == id {
			return true
		}
	}
	return false
}
