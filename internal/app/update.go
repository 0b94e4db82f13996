package app

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/types"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionsMsg:
		if msg.err != nil {
			// Degrade to the locally persisted recents.
			m.status = "sessions: " + msg.err.Error()
		} else {
			m.remote = msg.sessions
		}
		m.sessions = m.mergeSessions()
		m.clampSelected()
		return m, nil

	case historyLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.status = "history: " + msg.err.Error()
			return m, nil
		}
		m.guard.ResolveOptimistic(msg.sessionKey, m.store.Messages())
		m.refreshTranscript()
		return m, nil

	case sendDoneMsg:
		if msg.err != nil {
			m.status = "send: " + msg.err.Error()
			m.refreshTranscript()
			return m, nil
		}
		m.refreshTranscript()
		if _, ok := m.guard.Optimistic(); ok {
			// A brand-new session exists on the gateway now; refresh the
			// listing so its row stops being provisional.
			return m, fetchSessionsCmd(m.requester)
		}
		return m, nil

	case eventsOpenedMsg:
		if msg.err != nil {
			m.status = "events: " + msg.err.Error()
			return m, nil
		}
		m.events = msg.events
		m.cancelEvents = msg.cancel
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd

	case tickMsg:
		m.drainEvents()
		if key := m.guard.ViewedKey(); key != "" {
			m.guard.ResolveOptimistic(key, m.store.Messages())
		}
		m.refreshTranscript()
		return m, tickCmd()
	}

	return m.forward(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.cancelEvents != nil {
			m.cancelEvents()
		}
		return m, tea.Quit
	case "tab":
		m.toggleFocus()
		return m, nil
	case "ctrl+y":
		m.copyLastReply()
		return m, nil
	}

	if m.focus == focusSessions {
		switch msg.String() {
		case "q", "esc":
			if m.cancelEvents != nil {
				m.cancelEvents()
			}
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.sessions)-1 {
				m.selected++
			}
			return m, nil
		case "r":
			return m, fetchSessionsCmd(m.requester)
		case "n":
			m.startNewSession()
			return m, nil
		case "d":
			if key := m.selectedSessionKey(); key != "" && m.repo != nil {
				_ = m.repo.DeleteRecent(key)
				m.sessions = m.mergeSessions()
				m.clampSelected()
				m.status = "removed from recents"
			}
			return m, nil
		case "enter":
			return m, m.navigate(m.selectedSessionKey())
		}
		return m.forward(msg)
	}

	switch msg.String() {
	case "esc":
		m.toggleFocus()
		return m, nil
	case "enter":
		return m, m.submit()
	}
	return m.forward(msg)
}

func (m *Model) toggleFocus() {
	if m.focus == focusSessions {
		m.focus = focusInput
		m.input.Focus()
		return
	}
	m.focus = focusSessions
	m.input.Blur()
}

func (m *Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusInput {
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// drainEvents applies a bounded number of gateway events per tick so a
// chatty stream cannot starve rendering.
func (m *Model) drainEvents() {
	if m.events == nil {
		return
	}
	for i := 0; i < maxEventsPerTick; i++ {
		select {
		case event, ok := <-m.events:
			if !ok {
				m.events = nil
				m.cancelEvents = nil
				m.status = "event stream closed"
				return
			}
			m.processor.HandleEvent(event)
		default:
			return
		}
	}
}

func (m *Model) copyLastReply() {
	messages := m.store.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant && messages[i].Text != "" {
			if err := clipboard.WriteAll(messages[i].Text); err != nil {
				m.status = fmt.Sprintf("copy failed: %v", err)
				return
			}
			m.status = "copied reply"
			return
		}
	}
	m.status = "nothing to copy"
}
