package chat

import (
	"context"

	"parley/internal/types"
)

// Requester is the request/response half of the gateway interface. The
// engine never talks HTTP directly; anything that can answer a method
// call can drive it.
type Requester interface {
	Request(ctx context.Context, method string, params any, out any) error
}

const (
	methodChatHistory  = "chat.history"
	methodChatSend     = "chat.send"
	methodChatSessions = "chat.sessions"
)

type HistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

type HistoryResponse struct {
	SessionKey    string           `json:"sessionKey"`
	SessionID     string           `json:"sessionId,omitempty"`
	Messages      []map[string]any `json:"messages"`
	ThinkingLevel string           `json:"thinkingLevel,omitempty"`
}

type SendParams struct {
	SessionKey     string           `json:"sessionKey"`
	Message        string           `json:"message"`
	Deliver        bool             `json:"deliver"`
	IdempotencyKey string           `json:"idempotencyKey"`
	Attachments    []WireAttachment `json:"attachments,omitempty"`
}

type SessionsResponse struct {
	Sessions []types.SessionSummary `json:"sessions"`
}

// ListSessions fetches the gateway's session listing.
func ListSessions(ctx context.Context, api Requester) ([]types.SessionSummary, error) {
	var resp SessionsResponse
	if err := api.Request(ctx, methodChatSessions, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}
