package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/gateway"
	"parley/internal/logging"
	"parley/internal/store"
	"parley/internal/types"
)

const (
	tickInterval     = 100 * time.Millisecond
	maxEventsPerTick = 64
	minListWidth     = 22
	maxListWidth     = 36
	minViewportWidth = 20
	minContentHeight = 6
)

type focusArea int

const (
	focusSessions focusArea = iota
	focusInput
)

// EventSource is the subscription half of the gateway interface.
type EventSource interface {
	Events(ctx context.Context) (<-chan types.GatewayEvent, func(), error)
}

type Model struct {
	requester chat.Requester
	source    EventSource

	store      *chat.Store
	guard      *chat.SessionGuard
	reconciler *chat.Reconciler
	sender     *chat.Sender
	processor  *chat.Processor
	repo       *store.Repository
	settings   config.Settings
	log        logging.Logger

	sessions []types.SessionSummary
	remote   []types.SessionSummary
	selected int
	focus    focusArea

	input        textarea.Model
	viewport     viewport.Model
	loader       spinner.Model
	events       <-chan types.GatewayEvent
	cancelEvents func()

	width   int
	height  int
	status  string
	loading bool
}

func NewModel(client *gateway.Client, repo *store.Repository, settings config.Settings, log logging.Logger) Model {
	if log == nil {
		log = logging.Nop()
	}
	st := chat.NewStore(chat.WithStoreLogger(log))
	guard := chat.NewSessionGuard(st)
	reconciler := chat.NewReconciler(st, client, settings.HistoryLimit(), log)
	sender := chat.NewSender(st, client, chat.AttachmentLimits{
		MaxFileBytes:  settings.MaxAttachmentBytes(),
		MaxFiles:      settings.MaxAttachmentCount(),
		MaxTotalBytes: settings.MaxAttachmentTotalBytes(),
	}, log)
	processor := chat.NewProcessor(st, guard, reconciler, log)

	input := textarea.New()
	input.Placeholder = "Message"
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.CharLimit = 0

	vp := viewport.New(minViewportWidth, minContentHeight)
	vp.SetContent("No session selected.")

	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = lipgloss.NewStyle()

	return Model{
		requester:  client,
		source:     client,
		store:      st,
		guard:      guard,
		reconciler: reconciler,
		sender:     sender,
		processor:  processor,
		repo:       repo,
		settings:   settings,
		log:        log,
		input:      input,
		viewport:   vp,
		loader:     loader,
		focus:      focusSessions,
	}
}

func Run(client *gateway.Client, repo *store.Repository, settings config.Settings, log logging.Logger) error {
	model := NewModel(client, repo, settings, log)
	p := tea.NewProgram(&model, tea.WithAltScreen())
	_, err := p.Run()
	if model.cancelEvents != nil {
		model.cancelEvents()
	}
	if repo != nil {
		_ = repo.Close()
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		fetchSessionsCmd(m.requester),
		openEventsCmd(m.source),
		m.loader.Tick,
		tickCmd(),
	)
}

func (m *Model) selectedSessionKey() string {
	if m.selected < 0 || m.selected >= len(m.sessions) {
		return ""
	}
	return m.sessions[m.selected].Key
}

// navigate switches the viewed session: the store is cleared before the
// history fetch is issued, drafts are swapped, and the recents record is
// touched.
func (m *Model) navigate(sessionKey string) tea.Cmd {
	if sessionKey == "" || sessionKey == m.guard.ViewedKey() {
		return nil
	}
	if m.repo != nil {
		if prior := m.guard.ViewedKey(); prior != "" {
			_ = m.repo.SaveDraft(prior, m.input.Value())
		}
	}
	m.guard.Activate(sessionKey)
	m.input.Reset()
	if m.repo != nil {
		if draft, ok, err := m.repo.Draft(sessionKey); err == nil && ok {
			m.input.SetValue(draft)
		}
		title := ""
		for _, session := range m.sessions {
			if session.Key == sessionKey {
				title = session.Title
				break
			}
		}
		_ = m.repo.TouchRecent(sessionKey, title, time.Now())
	}
	m.loading = true
	m.status = ""
	return loadHistoryCmd(m.reconciler, sessionKey)
}

// startNewSession opens a locally created session the gateway does not
// know about yet. No history fetch is issued: the store was just cleared
// and there is nothing to load until the first send persists.
func (m *Model) startNewSession() {
	if m.repo != nil {
		if prior := m.guard.ViewedKey(); prior != "" {
			_ = m.repo.SaveDraft(prior, m.input.Value())
		}
	}
	key := "s-" + uuid.NewString()
	m.sessions = append([]types.SessionSummary{{Key: key, Title: "new chat"}}, m.sessions...)
	m.selected = 0
	m.guard.Activate(key)
	m.input.Reset()
	m.focus = focusInput
	m.input.Focus()
	if m.repo != nil {
		_ = m.repo.TouchRecent(key, "new chat", time.Now())
	}
	m.loading = false
	m.status = ""
}

func (m *Model) submit() tea.Cmd {
	sessionKey := m.guard.ViewedKey()
	text := m.input.Value()
	if sessionKey == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	// Sending into a session the gateway has not listed yet: hold the
	// optimistic record until history confirms the session exists.
	if !m.remoteListed(sessionKey) {
		m.guard.SetOptimistic(chat.OptimisticSession{
			Key:          sessionKey,
			Title:        provisionalTitle(text),
			FirstMessage: text,
		})
	}
	m.input.Reset()
	if m.repo != nil {
		_ = m.repo.SaveDraft(sessionKey, "")
	}
	return sendCmd(m.sender, sessionKey, text)
}

func (m *Model) remoteListed(sessionKey string) bool {
	for _, session := range m.remote {
		if session.Key == sessionKey {
			return true
		}
	}
	return false
}

// mergeSessions orders the sidebar: locally recent sessions first, most
// recently opened on top, then the rest of the gateway listing. Titles
// prefer the gateway's. With the gateway unreachable this degrades to the
// persisted recents alone.
func (m *Model) mergeSessions() []types.SessionSummary {
	if m.repo == nil {
		return m.remote
	}
	recents, err := m.repo.Recents()
	if err != nil || len(recents) == 0 {
		return m.remote
	}
	byKey := make(map[string]types.SessionSummary, len(m.remote))
	for _, session := range m.remote {
		byKey[session.Key] = session
	}
	merged := make([]types.SessionSummary, 0, len(m.remote)+len(recents))
	seen := make(map[string]struct{}, len(recents))
	for _, recent := range recents {
		seen[recent.Key] = struct{}{}
		if session, ok := byKey[recent.Key]; ok {
			merged = append(merged, session)
			continue
		}
		// Known locally but absent from the gateway listing; keep the
		// row so it can still be opened or pruned.
		merged = append(merged, types.SessionSummary{
			Key:       recent.Key,
			Title:     recent.Title,
			UpdatedAt: recent.LastOpened,
		})
	}
	for _, session := range m.remote {
		if _, ok := seen[session.Key]; !ok {
			merged = append(merged, session)
		}
	}
	return merged
}

func (m *Model) clampSelected() {
	if m.selected >= len(m.sessions) {
		m.selected = len(m.sessions) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// provisionalTitle derives a sidebar title from the first message.
func provisionalTitle(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	const maxTitleLen = 48
	if len(line) > maxTitleLen {
		line = line[:maxTitleLen]
	}
	return line
}
