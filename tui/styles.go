// ABOUTME: Defines lipgloss styles for the chat transcript, build panel, input line, and status bar.
// ABOUTME: Provides StyleForBuildState to map client.BuildState values to their display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/kodejam/client"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Transcript roles
	UserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	AssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	ShotStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	MutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// Build states
	IdleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	WaitingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)

// StyleForBuildState returns the display style for a build state.
func StyleForBuildState(s client.BuildState) lipgloss.Style {
	switch s {
	case client.StatePlanning, client.StateBuilding:
		return RunningStyle
	case client.StateShowingPlan:
		return WaitingStyle
	case client.StateCompleted:
		return CompletedStyle
	case client.StateError:
		return FailedStyle
	default:
		return IdleStyle
	}
}
