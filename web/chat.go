// ABOUTME: Chat endpoint: one agent turn per request, streamed as SSE, committed to the page's thread.
// ABOUTME: The thread id frame goes out first so the client can resume the conversation.
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/2389-research/kodejam/agent"
	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
)

// ChatContext describes what the user is looking at.
type ChatContext struct {
	Shapes   []Shape `json:"shapes"`
	RepoPath string  `json:"repoPath"`
	PageName string  `json:"pageName"`
	PageID   string  `json:"pageId,omitempty"`
	// DevURL is the running app; when set the agent may request screenshots.
	DevURL string `json:"devUrl,omitempty"`
}

// ChatRequest is the body of POST /api/chat and the first WebSocket message.
type ChatRequest struct {
	ThreadID string      `json:"threadId,omitempty"`
	Message  string      `json:"message"`
	Context  ChatContext `json:"context"`
}

func (r ChatRequest) validate() string {
	if r.Message == "" || r.Context.RepoPath == "" {
		return "message and context.repoPath are required"
	}
	return ""
}

func (r ChatRequest) pageID() string {
	if r.Context.PageID != "" {
		return r.Context.PageID
	}
	return r.Context.PageName
}

type chatTurn struct {
	req      ChatRequest
	threadID string
	proc     *agent.Process
	spec     turnSpec
}

// prepareChat resolves the thread, builds the prompt and launches the agent.
func (s *Server) prepareChat(ctx context.Context, req ChatRequest) (*chatTurn, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = store.NewThreadID()
	}
	logger := s.logger.With("turn", kindChat, "thread", threadID)

	var history []store.Message
	if req.ThreadID != "" {
		th, err := s.store.GetThread(ctx, req.ThreadID)
		switch {
		case err == nil:
			history = th.Messages
		case errors.Is(err, store.ErrNotFound):
			logger.Debug("thread not stored yet, starting fresh")
		default:
			logger.Warn("load thread history failed", "err", err)
		}
	}

	spec := turnSpec{
		kind: kindChat,
		req: agent.Request{
			Prompt:       buildChatPrompt(req, history),
			AllowedTools: agent.ReadOnlyTools,
			WorkDir:      req.Context.RepoPath,
		},
		repoPath: req.Context.RepoPath,
		capture:  true,
		logger:   logger,
	}
	proc, err := s.launchTurn(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &chatTurn{req: req, threadID: threadID, proc: proc, spec: spec}, nil
}

// runChat streams a launched chat turn to pub, persists it and sends done.
func (s *Server) runChat(ctx context.Context, pub Publisher, turn *chatTurn) {
	guard := newGuardedPublisher(pub)
	_ = guard.Publish(stream.NewThreadFrame(turn.threadID))

	res := s.streamTurn(ctx, guard, turn.proc, turn.spec)

	// The transcript is kept even when the client went away mid-turn.
	_, err := s.persister.Commit(context.WithoutCancel(ctx), store.Turn{
		ThreadID:  turn.threadID,
		PageID:    turn.req.pageID(),
		ShapeIDs:  shapeIDs(turn.req.Context.Shapes),
		User:      turn.req.Message,
		Assistant: res.display,
	})
	if err != nil {
		s.metrics.persistFailures.Inc()
		turn.spec.logger.Error("persist transcript failed", "err", err)
	}

	_ = guard.Publish(stream.DoneFrame{
		Type:     stream.FrameDone,
		ThreadID: turn.threadID,
		ExitCode: res.exitCode,
	})
	s.finishTurn(turn.spec, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := s.checkRepo(req.Context.RepoPath); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	turn, err := s.prepareChat(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pub, err := NewSSEPublisher(w, r)
	if err != nil {
		s.abandonTurn(turn.spec, turn.proc, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pub.Close()
	s.runChat(r.Context(), pub, turn)
}
