// ABOUTME: Renders the build flow panel: state, the proposed plan, execution log tail, and errors.
// ABOUTME: Hidden while the flow is idle so the transcript gets the full height.
package tui

import (
	"fmt"
	"strings"

	"github.com/2389-research/kodejam/client"
)

// maxLogLines limits the execution log lines shown in the panel.
const maxLogLines = 6

// BuildPanelModel shows the latest build flow snapshot.
type BuildPanelModel struct {
	snap  client.BuildSnapshot
	width int
}

// NewBuildPanelModel creates an idle build panel.
func NewBuildPanelModel() BuildPanelModel {
	return BuildPanelModel{}
}

// SetSnapshot replaces the displayed snapshot.
func (m *BuildPanelModel) SetSnapshot(s client.BuildSnapshot) {
	m.snap = s
}

// Snapshot returns the displayed snapshot.
func (m BuildPanelModel) Snapshot() client.BuildSnapshot {
	return m.snap
}

// SetWidth sets the panel width.
func (m *BuildPanelModel) SetWidth(w int) {
	m.width = w
}

// Visible reports whether the panel has anything to show.
func (m BuildPanelModel) Visible() bool {
	return m.snap.State != client.StateIdle
}

// View renders the panel, or "" when idle.
func (m BuildPanelModel) View() string {
	if !m.Visible() {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Build"))
	if m.snap.BuildID != "" {
		b.WriteString(" " + MutedStyle.Render(m.snap.BuildID))
	}
	b.WriteString(" " + StyleForBuildState(m.snap.State).Render(m.snap.State.String()))

	if p := m.snap.Plan; p != nil {
		b.WriteString("\n" + p.Summary)
		for i, step := range p.Steps {
			target := step.File
			if target == "" && len(step.Files) > 0 {
				target = strings.Join(step.Files, ", ")
			}
			line := fmt.Sprintf("%d. [%s] %s", i+1, step.Action, step.Title)
			if target != "" {
				line += " (" + target + ")"
			}
			b.WriteString("\n" + line)
		}
		if m.snap.State == client.StateShowingPlan {
			b.WriteString("\n" + MutedStyle.Render("/approve to build, /reset to discard"))
		}
	}

	logs := m.snap.Log
	if len(logs) > maxLogLines {
		logs = logs[len(logs)-maxLogLines:]
	}
	for _, l := range logs {
		b.WriteString("\n" + MutedStyle.Render(strings.TrimRight(l, "\n")))
	}
	if m.snap.Err != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.snap.Err))
	}

	w := m.width - 2
	if w < 1 {
		w = 1
	}
	return BorderStyle.Width(w).Render(b.String())
}
