// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing turn and build progress.
// ABOUTME: Displays page name, thread id, turn activity with elapsed time, and the build flow state.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/kodejam/client"
)

// StatusBarModel displays session status in a single line.
type StatusBarModel struct {
	pageName  string
	threadID  string
	startTime time.Time
	busy      bool
	build     client.BuildState
	notice    string
	width     int
}

// NewStatusBarModel creates a new StatusBarModel for the given page.
func NewStatusBarModel(pageName string) StatusBarModel {
	return StatusBarModel{pageName: pageName}
}

// Start records the start of a turn.
func (m *StatusBarModel) Start() {
	m.startTime = time.Now()
	m.busy = true
}

// Stop marks the turn as finished.
func (m *StatusBarModel) Stop() {
	m.busy = false
}

// SetThread sets the thread id shown in the bar.
func (m *StatusBarModel) SetThread(id string) {
	m.threadID = id
}

// SetBuildState sets the build flow state shown in the bar.
func (m *StatusBarModel) SetBuildState(s client.BuildState) {
	m.build = s
}

// SetNotice sets a short transient message.
func (m *StatusBarModel) SetNotice(s string) {
	m.notice = s
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time since Start() was called, or zero if not started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// shortID trims long ids for display.
func shortID(id string) string {
	if id == "" {
		return "new"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	turn := "ready"
	if m.busy {
		turn = "thinking " + formatElapsed(m.Elapsed())
	}

	content := fmt.Sprintf("Page: %s | Thread: %s | %s | Build: %s",
		m.pageName, shortID(m.threadID), turn, m.build)
	if m.notice != "" {
		content += " | " + m.notice
	}

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
