// ABOUTME: Top-level Bubble Tea AppModel for the terminal chat client.
// ABOUTME: Routes keys, slash commands, and bridged client events to the transcript, build panel, and status bar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/web"
)

const helpText = "/plan  /approve  /cancel  /reset  /quit"

// Options configures a terminal session.
type Options struct {
	Client  *client.Client
	Context web.ChatContext
	// Resume loads the page's latest thread on start.
	Resume bool
}

// AppModel is the top-level Bubble Tea model for a chat session.
type AppModel struct {
	transcript TranscriptModel
	build      BuildPanelModel
	statusBar  StatusBarModel
	input      textinput.Model

	client *client.Client
	conv   *client.Conversation
	flow   *client.BuildFlow
	bridge *EventBridge
	shapes []web.Shape
	pageID string
	resume bool

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
}

// NewAppModel creates an AppModel bound to ctx; quitting cancels it.
func NewAppModel(ctx context.Context, opts Options) AppModel {
	ctx, cancel := context.WithCancel(ctx)

	pageID := opts.Context.PageID
	if pageID == "" {
		pageID = opts.Context.PageName
	}

	conv := client.NewConversation(opts.Client, opts.Context)
	flow := client.NewBuildFlow(opts.Client, pageID, opts.Context.RepoPath)
	bridge := NewEventBridge(ctx)
	bridge.Attach(conv, flow)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the canvas, or /plan"
	ti.Focus()

	return AppModel{
		transcript: NewTranscriptModel(),
		build:      NewBuildPanelModel(),
		statusBar:  NewStatusBarModel(opts.Context.PageName),
		input:      ti,
		client:     opts.Client,
		conv:       conv,
		flow:       flow,
		bridge:     bridge,
		shapes:     opts.Context.Shapes,
		pageID:     pageID,
		resume:     opts.Resume,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the program in the alternate screen and blocks until quit.
func Run(ctx context.Context, opts Options) error {
	m := NewAppModel(ctx, opts)
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.bridge.WaitCmd(),
		textinput.Blink,
		TickCmd(time.Second),
	}
	if m.resume && m.pageID != "" {
		cmds = append(cmds, LoadHistoryCmd(m.ctx, m.client, m.pageID))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case FrameMsg:
		m.transcript.SetMessages(m.conv.Messages())
		if id := m.conv.ThreadID(); id != "" {
			m.statusBar.SetThread(id)
		}
		return m, m.bridge.WaitCmd()

	case BuildChangeMsg:
		m.build.SetSnapshot(msg.Snapshot)
		m.statusBar.SetBuildState(msg.Snapshot.State)
		return m, m.bridge.WaitCmd()

	case TurnDoneMsg:
		return m.handleTurnDone(msg)

	case BuildDoneMsg:
		return m.handleBuildDone(msg)

	case HistoryMsg:
		return m.handleHistory(msg)

	case TickMsg:
		return m, TickCmd(time.Second)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	m.build.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	buildView := m.build.View()

	transcriptHeight := m.height - 2 // input and status lines
	if buildView != "" {
		transcriptHeight -= lipgloss.Height(buildView)
	}
	if transcriptHeight < 4 {
		transcriptHeight = 4
	}
	m.transcript.SetSize(m.width, transcriptHeight)

	parts := []string{m.transcript.View()}
	if buildView != "" {
		parts = append(parts, buildView)
	}
	parts = append(parts, m.input.View(), m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m AppModel) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	m.statusBar.Stop()
	m.statusBar.SetThread(m.conv.ThreadID())
	m.transcript.SetMessages(m.conv.Messages())
	switch {
	case msg.Err == nil:
		m.statusBar.SetNotice("")
	case isCancel(msg.Err):
		m.statusBar.SetNotice("cancelled")
	default:
		m.statusBar.SetNotice("error: " + msg.Err.Error())
	}
	return m, nil
}

func (m AppModel) handleBuildDone(msg BuildDoneMsg) (tea.Model, tea.Cmd) {
	snap := m.flow.Snapshot()
	m.build.SetSnapshot(snap)
	m.statusBar.SetBuildState(snap.State)
	if msg.Err != nil && !isCancel(msg.Err) {
		m.statusBar.SetNotice(msg.Phase + ": " + msg.Err.Error())
	}
	return m, nil
}

func (m AppModel) handleHistory(msg HistoryMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.statusBar.SetNotice("history: " + msg.Err.Error())
		return m, nil
	}
	if msg.Thread != nil && !m.conv.Busy() {
		m.conv.Resume(msg.Thread)
		m.statusBar.SetThread(msg.Thread.ID)
		m.transcript.SetMessages(m.conv.Messages())
	}
	return m, nil
}

func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running() {
			m.cancelAll()
			return m, nil
		}
		m.cancel()
		return m, tea.Quit
	case tea.KeyEsc:
		m.cancelAll()
		return m, nil
	case tea.KeyPgUp:
		m.transcript.ScrollUp(5)
		return m, nil
	case tea.KeyPgDown:
		m.transcript.ScrollDown(5)
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// running reports whether a turn or build phase is in flight.
func (m AppModel) running() bool {
	if m.conv.Busy() {
		return true
	}
	s := m.flow.State()
	return s == client.StatePlanning || s == client.StateBuilding
}

func (m *AppModel) cancelAll() {
	m.conv.Cancel()
	if s := m.flow.State(); s == client.StatePlanning || s == client.StateBuilding {
		m.flow.Cancel()
	}
}

func (m AppModel) submit(text string) (tea.Model, tea.Cmd) {
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}
	if m.conv.Busy() {
		m.statusBar.SetNotice("a turn is already running")
		return m, nil
	}

	m.statusBar.Start()
	m.statusBar.SetNotice("")
	pending := append(m.conv.Messages(),
		client.Message{Role: store.RoleUser, Content: text},
		client.Message{Role: store.RoleAssistant},
	)
	m.transcript.SetMessages(pending)
	return m, SendTurnCmd(m.ctx, m.conv, text)
}

func (m AppModel) runCommand(text string) (tea.Model, tea.Cmd) {
	name := strings.Fields(text)[0]
	switch name {
	case "/plan":
		m.statusBar.SetNotice("planning")
		return m, PlanCmd(m.ctx, m.flow, m.shapes)
	case "/approve":
		m.statusBar.SetNotice("building")
		return m, ApproveCmd(m.ctx, m.flow)
	case "/cancel":
		m.cancelAll()
		m.statusBar.SetNotice("cancelled")
	case "/reset":
		m.flow.Reset()
		snap := m.flow.Snapshot()
		m.build.SetSnapshot(snap)
		m.statusBar.SetBuildState(snap.State)
		m.statusBar.SetNotice("")
	case "/quit", "/exit":
		m.cancel()
		return m, tea.Quit
	case "/help":
		m.statusBar.SetNotice(helpText)
	default:
		m.statusBar.SetNotice("unknown command " + name + " (" + helpText + ")")
	}
	return m, nil
}
