package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"parley/internal/chat"
	"parley/internal/types"
)

var (
	sidebarStyle      = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false)
	selectedRowStyle  = lipgloss.NewStyle().Reverse(true)
	userLabelStyle    = lipgloss.NewStyle().Bold(true)
	agentLabelStyle   = lipgloss.NewStyle().Bold(true).Faint(true)
	pendingStyle      = lipgloss.NewStyle().Faint(true)
	statusErrorStyle  = lipgloss.NewStyle().Bold(true)
	toolStyle         = lipgloss.NewStyle().Faint(true)
	inputBorderStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false)
	placeholderStatus = "tab: focus input · enter: open/send · n: new chat · d: drop recent · ctrl+y: copy reply · q: quit"
)

func (m *Model) layout() {
	listWidth := m.width / 4
	if listWidth < minListWidth {
		listWidth = minListWidth
	}
	if listWidth > maxListWidth {
		listWidth = maxListWidth
	}
	contentWidth := m.width - listWidth - 1
	if contentWidth < minViewportWidth {
		contentWidth = minViewportWidth
	}
	contentHeight := m.height - m.input.Height() - 3
	if contentHeight < minContentHeight {
		contentHeight = minContentHeight
	}
	m.viewport.Width = contentWidth
	m.viewport.Height = contentHeight
	m.input.SetWidth(contentWidth)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	sidebar := m.renderSidebar()
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		inputBorderStyle.Width(m.viewport.Width).Render(m.input.View()),
		m.renderStatus(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

func (m *Model) renderSidebar() string {
	width := m.width / 4
	if width < minListWidth {
		width = minListWidth
	}
	if width > maxListWidth {
		width = maxListWidth
	}
	var rows []string
	rows = append(rows, userLabelStyle.Render("Sessions"))
	if len(m.sessions) == 0 {
		rows = append(rows, pendingStyle.Render("(none)"))
	}
	for i, session := range m.sessions {
		label := session.Title
		if label == "" {
			label = session.Key
		}
		row := xansi.Truncate(label, width-2, "…")
		if i == m.selected && m.focus == focusSessions {
			row = selectedRowStyle.Render(row)
		}
		if session.Key == m.guard.ViewedKey() {
			row = "• " + row
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}
	body := strings.Join(rows, "\n")
	return sidebarStyle.Width(width).Height(m.viewport.Height + m.input.Height() + 2).Render(body)
}

func (m *Model) renderStatus() string {
	if err := m.store.Err(); err != "" {
		return statusErrorStyle.Render(xansi.Truncate("error: "+err, m.viewport.Width, "…"))
	}
	if m.status != "" {
		return xansi.Truncate(m.status, m.viewport.Width, "…")
	}
	if m.store.Sending() {
		return m.loader.View() + " sending..."
	}
	if m.loading {
		return m.loader.View() + " loading history..."
	}
	return pendingStyle.Render(xansi.Truncate(placeholderStatus, m.viewport.Width, "…"))
}

// refreshTranscript rebuilds the viewport content from store state. The
// guard's render gate keeps stale prior-session data from painting during
// the one render window between a navigation and the clear catching up.
func (m *Model) refreshTranscript() {
	if m.guard.ViewedKey() == "" {
		m.viewport.SetContent("No session selected.")
		return
	}
	if !m.guard.RenderReady() {
		m.viewport.SetContent("")
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderTranscript() string {
	var optimistic *chat.OptimisticSession
	if record, ok := m.guard.Optimistic(); ok {
		optimistic = &record
	}

	// Deduplicate on display keys so the optimistic first message and its
	// history counterpart never paint as two bubbles.
	seen := map[string]struct{}{}
	var blocks []string
	for _, message := range m.store.Messages() {
		key := chat.DisplayKey(message, optimistic)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		blocks = append(blocks, m.renderMessage(message))
	}
	for _, entry := range m.store.StreamEntries() {
		blocks = append(blocks, m.renderStream(entry))
	}
	if len(blocks) == 0 {
		return pendingStyle.Render("Empty conversation.")
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(message types.Message) string {
	var b strings.Builder
	switch message.Role {
	case types.RoleUser:
		b.WriteString(userLabelStyle.Render("You"))
	case types.RoleAssistant:
		b.WriteString(agentLabelStyle.Render("Assistant"))
	case types.RoleSystem:
		b.WriteString(agentLabelStyle.Render("System"))
	default:
		b.WriteString(agentLabelStyle.Render("?"))
	}
	if message.Pending {
		b.WriteString(pendingStyle.Render("  (sending...)"))
	}
	b.WriteString("\n")

	if message.Text != "" {
		if message.Role == types.RoleAssistant {
			b.WriteString(m.renderMarkdown(message.Text))
		} else {
			b.WriteString(message.Text)
		}
	}
	for _, attachment := range message.Attachments {
		b.WriteString("\n")
		b.WriteString(toolStyle.Render(fmt.Sprintf("[%s: %s]", attachment.Type, attachmentLabel(attachment))))
	}
	for _, call := range message.ToolCalls {
		b.WriteString("\n")
		b.WriteString(toolStyle.Render("⚙ " + toolCallLabel(call)))
	}
	for _, result := range message.ToolResults {
		b.WriteString("\n")
		marker := "→"
		if result.IsError {
			marker = "✗"
		}
		b.WriteString(toolStyle.Render(fmt.Sprintf("%s %s", marker, xansi.Truncate(result.Text, m.viewport.Width-4, "…"))))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderStream(entry types.StreamEntry) string {
	var b strings.Builder
	b.WriteString(agentLabelStyle.Render("Assistant") + pendingStyle.Render("  "+m.loader.View()))
	if strings.TrimSpace(entry.Text) != "" {
		b.WriteString("\n")
		b.WriteString(entry.Text)
	}
	for _, call := range m.store.LiveToolCalls() {
		if call.RunID != entry.RunID {
			continue
		}
		b.WriteString("\n")
		marker := "⚙"
		if call.Phase == types.ToolPhaseResult {
			marker = "→"
			if call.IsError {
				marker = "✗"
			}
		}
		b.WriteString(toolStyle.Render(marker + " " + toolCallLabel(types.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments})))
	}
	return b.String()
}

func (m *Model) renderMarkdown(text string) string {
	width := m.viewport.Width
	if width <= 0 {
		width = minViewportWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func attachmentLabel(attachment types.Attachment) string {
	if attachment.FileName != "" {
		return attachment.FileName
	}
	if attachment.MimeType != "" {
		return attachment.MimeType
	}
	return "attachment"
}

func toolCallLabel(call types.ToolCall) string {
	name := call.Name
	if name == "" {
		name = call.ID
	}
	if call.Arguments == "" {
		return name
	}
	return name + "(" + call.Arguments + ")"
}
