// ABOUTME: Implements the scrollable chat transcript panel using the bubbles viewport component.
// ABOUTME: Renders user and assistant messages with screenshots, in-band errors, and partial markers.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/store"
)

// TranscriptModel is a scrollable view of the conversation.
type TranscriptModel struct {
	messages []client.Message
	viewport viewport.Model
	width    int
	height   int
}

// NewTranscriptModel creates an empty transcript.
func NewTranscriptModel() TranscriptModel {
	return TranscriptModel{viewport: viewport.New(80, 10)}
}

// SetMessages replaces the rendered messages and scrolls to the bottom.
func (m *TranscriptModel) SetMessages(msgs []client.Message) {
	m.messages = msgs
	m.syncViewport()
}

// Len returns the number of messages shown.
func (m TranscriptModel) Len() int {
	return len(m.messages)
}

// SetSize sets the available dimensions and updates the viewport.
func (m *TranscriptModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	vpWidth := w - 2
	vpHeight := h - 3
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.syncViewport()
}

func (m *TranscriptModel) syncViewport() {
	m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

// ScrollUp scrolls the transcript up by n lines.
func (m *TranscriptModel) ScrollUp(n int) {
	m.viewport.ScrollUp(n)
}

// ScrollDown scrolls the transcript down by n lines.
func (m *TranscriptModel) ScrollDown(n int) {
	m.viewport.ScrollDown(n)
}

// View renders the transcript inside a bordered panel.
func (m TranscriptModel) View() string {
	title := TitleStyle.Render("Conversation")
	body := lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View())
	return BorderStyle.Width(m.viewport.Width).Render(body)
}

func renderMessages(msgs []client.Message, width int) string {
	if len(msgs) == 0 {
		return MutedStyle.Render("Type a message, or /plan to plan a build. /help lists commands.")
	}
	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderMessage(msg, wrap))
	}
	return b.String()
}

func renderMessage(msg client.Message, wrap lipgloss.Style) string {
	var b strings.Builder
	if msg.Role == store.RoleUser {
		b.WriteString(UserStyle.Render("you"))
	} else {
		b.WriteString(AssistantStyle.Render("agent"))
		if msg.Partial {
			b.WriteString(" " + MutedStyle.Render("(partial)"))
		}
	}
	b.WriteString("\n")
	content := msg.Content
	if content == "" && msg.Role != store.RoleUser {
		content = MutedStyle.Render("...")
	}
	b.WriteString(wrap.Render(content))
	for _, s := range msg.Screenshots {
		b.WriteString("\n")
		b.WriteString(ShotStyle.Render(fmt.Sprintf("  [screenshot] %s (%dx%d) %s", s.Description, s.Width, s.Height, s.ImageURL)))
	}
	for _, e := range msg.Errors {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("  ! " + e))
	}
	b.WriteString("\n")
	return b.String()
}
