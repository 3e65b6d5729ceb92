// ABOUTME: Tests for StatusBarModel which renders a single-line session status bar.
// ABOUTME: Covers construction, turn timing, id shortening, and View() rendering.
package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/2389-research/kodejam/client"
)

func TestStatusBarStartStop(t *testing.T) {
	m := NewStatusBarModel("Home")
	if m.Elapsed() != 0 {
		t.Fatal("elapsed should be zero before Start()")
	}
	before := time.Now()
	m.Start()
	if !m.busy || m.startTime.Before(before) {
		t.Errorf("Start did not record: busy=%v start=%v", m.busy, m.startTime)
	}
	m.Stop()
	if m.busy {
		t.Error("Stop should clear busy")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{12 * time.Second, "12s"},
		{59*time.Second + 900*time.Millisecond, "59s"},
		{150 * time.Second, "2m30s"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID(""); got != "new" {
		t.Errorf("shortID(\"\") = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %q", got)
	}
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID(long) = %q", got)
	}
}

func TestStatusBarView(t *testing.T) {
	m := NewStatusBarModel("Home")
	m.SetWidth(120)
	m.SetThread("0123456789")
	m.SetBuildState(client.StateShowingPlan)
	m.SetNotice("planning")

	view := m.View()
	for _, want := range []string{"Page: Home", "Thread: 01234567", "ready", "Build: showing_plan", "planning"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q: %q", want, view)
		}
	}

	m.Start()
	if !strings.Contains(m.View(), "thinking 0s") {
		t.Errorf("busy view = %q", m.View())
	}
}
