// ABOUTME: Tests for transcript and build panel rendering.
package tui

import (
	"strings"
	"testing"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/store"
)

func TestRenderMessagesEmpty(t *testing.T) {
	if got := renderMessages(nil, 80); !strings.Contains(got, "/plan") {
		t.Errorf("empty transcript hint = %q", got)
	}
}

func TestRenderMessages(t *testing.T) {
	msgs := []client.Message{
		{Role: store.RoleUser, Content: "show me the header"},
		{
			Role:    store.RoleAssistant,
			Content: "Here it is.",
			Partial: true,
			Screenshots: []client.Screenshot{{
				URL: "http://localhost:5173/", Description: "Home page",
				ImageURL: "/api/screenshots/a.png?repo=%2Frepo", Width: 1280, Height: 800,
			}},
			Errors: []string{"warning: slow"},
		},
	}
	got := renderMessages(msgs, 80)
	for _, want := range []string{
		"you", "show me the header", "agent", "(partial)", "Here it is.",
		"[screenshot] Home page (1280x800)", "! warning: slow",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered transcript missing %q:\n%s", want, got)
		}
	}
}

func TestRenderPendingAssistant(t *testing.T) {
	got := renderMessages([]client.Message{{Role: store.RoleAssistant}}, 80)
	if !strings.Contains(got, "...") {
		t.Errorf("pending assistant = %q", got)
	}
}

func TestTranscriptSetMessages(t *testing.T) {
	m := NewTranscriptModel()
	m.SetSize(60, 10)
	m.SetMessages([]client.Message{{Role: store.RoleUser, Content: "hello"}})
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
	if !strings.Contains(m.View(), "hello") || !strings.Contains(m.View(), "Conversation") {
		t.Errorf("View = %q", m.View())
	}
}

func TestBuildPanelView(t *testing.T) {
	p := NewBuildPanelModel()
	p.SetWidth(80)
	if p.View() != "" {
		t.Error("idle panel should render nothing")
	}

	p.SetSnapshot(client.BuildSnapshot{
		State:   client.StateError,
		BuildID: "b-9",
		Plan: &client.Plan{
			Summary: "Rework nav",
			Steps: []client.PlanStep{
				{Title: "Nav", Files: []string{"a.tsx", "b.tsx"}, Action: client.ActionModify},
			},
		},
		Log: []string{"1", "2", "3", "4", "5", "6", "7"},
		Err: "Process exited with code 2",
	})
	view := p.View()
	for _, want := range []string{"b-9", "error", "Rework nav", "1. [modify] Nav (a.tsx, b.tsx)", "Process exited with code 2", "7"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "/approve") {
		t.Error("approve hint shown outside showing_plan")
	}
}
