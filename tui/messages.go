// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps a client-side event so it can travel through tea.Msg.
package tui

import (
	"time"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
)

// FrameMsg carries one frame of the running chat turn.
type FrameMsg struct {
	Event stream.Event
}

// TurnDoneMsg signals that a chat turn has finished.
type TurnDoneMsg struct {
	Message client.Message
	Err     error
}

// BuildChangeMsg carries a build flow snapshot after any state change.
type BuildChangeMsg struct {
	Snapshot client.BuildSnapshot
}

// BuildDoneMsg signals that a plan or approve call returned.
type BuildDoneMsg struct {
	Phase string // "plan" or "approve"
	Err   error
}

// HistoryMsg carries the latest stored thread for the page, if any.
type HistoryMsg struct {
	Thread *store.Thread
	Err    error
}

// TickMsg is sent periodically to refresh the elapsed timer.
type TickMsg struct {
	Time time.Time
}
