// ABOUTME: Bridge connecting client.Conversation and client.BuildFlow callbacks to the Bubble Tea message loop.
// ABOUTME: Provides the event channel plus tea.Cmd factories for turns, plan/approve calls, history, and ticks.
package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/stream"
	"github.com/2389-research/kodejam/web"
)

// eventBufferSize bounds how far callbacks can run ahead of the UI.
const eventBufferSize = 256

// EventBridge carries callback messages from client goroutines into the
// message loop. Sends give up once ctx is done so a quitting UI never
// blocks a stream reader.
type EventBridge struct {
	ctx context.Context
	ch  chan tea.Msg
}

// NewEventBridge creates a bridge whose sends stop when ctx is done.
func NewEventBridge(ctx context.Context) *EventBridge {
	return &EventBridge{ctx: ctx, ch: make(chan tea.Msg, eventBufferSize)}
}

// Send queues msg for the message loop.
func (b *EventBridge) Send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.ctx.Done():
	}
}

// Attach wires the conversation and build flow callbacks to the bridge.
func (b *EventBridge) Attach(conv *client.Conversation, flow *client.BuildFlow) {
	if conv != nil {
		conv.OnEvent = func(evt stream.Event) { b.Send(FrameMsg{Event: evt}) }
	}
	if flow != nil {
		flow.OnChange = func(s client.BuildSnapshot) { b.Send(BuildChangeMsg{Snapshot: s}) }
	}
}

// WaitCmd blocks until the next bridged message arrives. The model re-arms
// it after every bridged message.
func (b *EventBridge) WaitCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.ctx.Done():
			return nil
		}
	}
}

// SendTurnCmd runs one chat turn and reports its final message.
func SendTurnCmd(ctx context.Context, conv *client.Conversation, text string) tea.Cmd {
	return func() tea.Msg {
		msg, err := conv.Send(ctx, text)
		return TurnDoneMsg{Message: msg, Err: err}
	}
}

// PlanCmd runs the planning phase of the build flow.
func PlanCmd(ctx context.Context, flow *client.BuildFlow, shapes []web.Shape) tea.Cmd {
	return func() tea.Msg {
		_, err := flow.Plan(ctx, shapes)
		return BuildDoneMsg{Phase: "plan", Err: err}
	}
}

// ApproveCmd runs the execution phase of the build flow.
func ApproveCmd(ctx context.Context, flow *client.BuildFlow) tea.Cmd {
	return func() tea.Msg {
		return BuildDoneMsg{Phase: "approve", Err: flow.Approve(ctx)}
	}
}

// LoadHistoryCmd fetches the latest thread for pageID. A missing thread is
// not an error.
func LoadHistoryCmd(ctx context.Context, c *client.Client, pageID string) tea.Cmd {
	return func() tea.Msg {
		t, err := c.LatestThread(ctx, pageID)
		if client.IsNotFound(err) {
			return HistoryMsg{}
		}
		return HistoryMsg{Thread: t, Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return TickMsg{Time: t} })
}

// isCancel reports whether err only reflects a user cancellation.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
