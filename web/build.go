// ABOUTME: Two-phase build endpoints: plan with read-only tools, then execute an approved plan read-write.
// ABOUTME: Both stream agent output as SSE and record progress on the build row.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/2389-research/kodejam/agent"
	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

// PlanRequest is the body of POST /api/build/plan.
type PlanRequest struct {
	PageID   string  `json:"pageId"`
	Shapes   []Shape `json:"shapes"`
	RepoPath string  `json:"repoPath"`
}

// ExecuteRequest is the body of POST /api/build/execute.
type ExecuteRequest struct {
	BuildID  string `json:"buildId"`
	Plan     string `json:"plan"`
	RepoPath string `json:"repoPath"`
}

func newBuildID() string {
	return strings.ToLower(ulid.Make().String())
}

func (s *Server) updateBuild(ctx context.Context, id string, u store.BuildUpdate) {
	if err := s.store.UpdateBuild(context.WithoutCancel(ctx), id, u); err != nil {
		s.metrics.persistFailures.Inc()
		s.logger.Error("update build failed", "build", id, "status", u.Status, "err", err)
	}
}

func (s *Server) failBuild(ctx context.Context, id string, msg string) {
	s.updateBuild(ctx, id, store.BuildUpdate{Status: store.BuildError, Error: &msg, Complete: true})
}

func (s *Server) handleBuildPlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PageID == "" || req.Shapes == nil || req.RepoPath == "" {
		writeError(w, http.StatusBadRequest, "pageId, shapes, and repoPath are required")
		return
	}
	if msg := s.checkRepo(req.RepoPath); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	buildID := newBuildID()
	if err := s.store.CreateBuild(ctx, store.Build{
		ID:             buildID,
		PageID:         req.PageID,
		Status:         store.BuildPlanning,
		SelectedShapes: shapeIDs(req.Shapes),
	}); err != nil {
		s.logger.Error("create build failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	spec := turnSpec{
		kind: kindPlan,
		req: agent.Request{
			Prompt:       buildPlanPrompt(req.Shapes),
			AllowedTools: agent.ReadOnlyTools,
			WorkDir:      req.RepoPath,
		},
		repoPath: req.RepoPath,
		logger:   s.logger.With("turn", kindPlan, "build", buildID),
	}
	proc, err := s.launchTurn(ctx, spec)
	if err != nil {
		s.failBuild(ctx, buildID, err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pub, err := NewSSEPublisher(w, r)
	if err != nil {
		s.abandonTurn(spec, proc, err)
		s.failBuild(ctx, buildID, err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pub.Close()

	guard := newGuardedPublisher(pub)
	_ = guard.Publish(stream.NewBuildFrame(buildID, ""))
	res := s.streamTurn(ctx, guard, proc, spec)

	status := store.BuildPending
	update := store.BuildUpdate{Status: status, Plan: &res.text}
	if res.exitCode != 0 {
		status = store.BuildError
		msg := fmt.Sprintf("Process exited with code %d", res.exitCode)
		update = store.BuildUpdate{Status: status, Plan: &res.text, Error: &msg, Complete: true}
	}
	s.updateBuild(ctx, buildID, update)

	_ = guard.Publish(stream.DoneFrame{
		Type:     stream.FrameDone,
		BuildID:  buildID,
		ExitCode: res.exitCode,
		Status:   string(status),
	})
	s.finishTurn(spec, res)
}

func (s *Server) handleBuildExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BuildID == "" || req.Plan == "" || req.RepoPath == "" {
		writeError(w, http.StatusBadRequest, "buildId, plan, and repoPath are required")
		return
	}
	if msg := s.checkRepo(req.RepoPath); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetBuild(ctx, req.BuildID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Build not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.UpdateBuild(ctx, req.BuildID, store.BuildUpdate{Status: store.BuildBuilding}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	spec := turnSpec{
		kind: kindExecute,
		req: agent.Request{
			Prompt:       buildExecutePrompt(req.Plan),
			AllowedTools: agent.ReadWriteTools,
			WorkDir:      req.RepoPath,
			MaxTurns:     s.cfg.BuildMaxTurns,
		},
		repoPath: req.RepoPath,
		logger:   s.logger.With("turn", kindExecute, "build", req.BuildID),
	}
	proc, err := s.launchTurn(ctx, spec)
	if err != nil {
		s.failBuild(ctx, req.BuildID, err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pub, err := NewSSEPublisher(w, r)
	if err != nil {
		s.abandonTurn(spec, proc, err)
		s.failBuild(ctx, req.BuildID, err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pub.Close()

	guard := newGuardedPublisher(pub)
	_ = guard.Publish(stream.NewBuildFrame(req.BuildID, string(store.BuildBuilding)))
	res := s.streamTurn(ctx, guard, proc, spec)

	status := store.BuildCompleted
	update := store.BuildUpdate{Status: status, Result: &res.text, Complete: true}
	if res.exitCode != 0 {
		status = store.BuildError
		msg := fmt.Sprintf("Process exited with code %d", res.exitCode)
		update = store.BuildUpdate{Status: status, Error: &msg, Complete: true}
	}
	s.updateBuild(ctx, req.BuildID, update)

	_ = guard.Publish(stream.DoneFrame{
		Type:     stream.FrameDone,
		BuildID:  req.BuildID,
		ExitCode: res.exitCode,
		Status:   string(status),
	})
	s.finishTurn(spec, res)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBuild(r.Context(), chi.URLParam(r, "buildID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Build not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}
