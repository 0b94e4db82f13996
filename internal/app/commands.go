package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/chat"
	"parley/internal/types"
)

const commandTimeout = 15 * time.Second

type sessionsMsg struct {
	sessions []types.SessionSummary
	err      error
}

type historyLoadedMsg struct {
	sessionKey string
	err        error
}

type sendDoneMsg struct {
	runID string
	err   error
}

type eventsOpenedMsg struct {
	events <-chan types.GatewayEvent
	cancel func()
	err    error
}

type tickMsg time.Time

func fetchSessionsCmd(api chat.Requester) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		sessions, err := chat.ListSessions(ctx, api)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func loadHistoryCmd(reconciler *chat.Reconciler, sessionKey string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		err := reconciler.LoadHistory(ctx, sessionKey)
		return historyLoadedMsg{sessionKey: sessionKey, err: err}
	}
}

func sendCmd(sender *chat.Sender, sessionKey, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		runID, err := sender.Send(ctx, sessionKey, text, nil)
		return sendDoneMsg{runID: runID, err: err}
	}
}

func openEventsCmd(source EventSource) tea.Cmd {
	return func() tea.Msg {
		events, cancel, err := source.Events(context.Background())
		return eventsOpenedMsg{events: events, cancel: cancel, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
