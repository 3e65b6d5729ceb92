// ABOUTME: BuildFlow drives the two-phase build: plan read-only, wait for approval, then execute.
// ABOUTME: Any error frame moves the flow to Error, which only Reset or Cancel leave.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/2389-research/kodejam/stream"
	"github.com/2389-research/kodejam/web"
)

// ErrInvalidTransition is returned when an action is not allowed in the
// flow's current state.
var ErrInvalidTransition = errors.New("client: invalid build transition")

// BuildState is a step of the build flow.
type BuildState int

const (
	StateIdle BuildState = iota
	StatePlanning
	StateShowingPlan
	StateBuilding
	StateCompleted
	StateError
)

func (s BuildState) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateShowingPlan:
		return "showing_plan"
	case StateBuilding:
		return "building"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// BuildSnapshot is a point-in-time copy of the flow.
type BuildSnapshot struct {
	State   BuildState
	BuildID string
	Plan    *Plan
	// Log holds execution progress text in arrival order.
	Log []string
	Err string
}

// BuildFlow is safe for concurrent use.
type BuildFlow struct {
	client   *Client
	pageID   string
	repoPath string

	// OnChange, when set, is called after every state change and log append.
	OnChange func(BuildSnapshot)

	mu      sync.Mutex
	state   BuildState
	gen     int
	buildID string
	plan    *Plan
	log     []string
	err     string
	cancel  context.CancelFunc
}

// NewBuildFlow returns an idle flow for one page of one repository.
func NewBuildFlow(c *Client, pageID, repoPath string) *BuildFlow {
	return &BuildFlow{client: c, pageID: pageID, repoPath: repoPath}
}

// Snapshot returns a copy of the flow's current state.
func (f *BuildFlow) Snapshot() BuildSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *BuildFlow) snapshotLocked() BuildSnapshot {
	s := BuildSnapshot{
		State:   f.state,
		BuildID: f.buildID,
		Log:     append([]string(nil), f.log...),
		Err:     f.err,
	}
	if f.plan != nil {
		p := f.plan.Clone()
		s.Plan = &p
	}
	return s
}

// State returns the current state.
func (f *BuildFlow) State() BuildState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *BuildFlow) notify() {
	if f.OnChange == nil {
		return
	}
	f.mu.Lock()
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.OnChange(s)
}

// begin moves from one of the allowed states to next and opens a new
// generation. Results from older generations are ignored.
func (f *BuildFlow) begin(ctx context.Context, next BuildState, from ...BuildState) (context.Context, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := false
	for _, s := range from {
		if f.state == s {
			ok = true
		}
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, next, f.state)
	}
	f.state = next
	f.gen++
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	return ctx, f.gen, nil
}

// update applies fn only while gen is still current.
func (f *BuildFlow) update(gen int, fn func()) bool {
	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return false
	}
	fn()
	f.mu.Unlock()
	f.notify()
	return true
}

func (f *BuildFlow) failLocked(msg string) {
	f.state = StateError
	f.err = msg
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Plan runs the planning phase. On success the flow waits in ShowingPlan
// and the parsed plan is returned.
func (f *BuildFlow) Plan(ctx context.Context, shapes []web.Shape) (Plan, error) {
	ctx, gen, err := f.begin(ctx, StatePlanning, StateIdle)
	if err != nil {
		return Plan{}, err
	}
	f.update(gen, func() {
		f.buildID, f.plan, f.log, f.err = "", nil, nil, ""
	})

	req := web.PlanRequest{PageID: f.pageID, Shapes: shapes, RepoPath: f.repoPath}
	if req.Shapes == nil {
		req.Shapes = []web.Shape{}
	}
	var acc stream.Accumulator
	status := ""
	streamErr := f.client.Stream(ctx, "/api/build/plan", req, func(evt stream.Event) {
		f.update(gen, func() {
			switch {
			case evt.Type == stream.FrameBuild:
				f.buildID = evt.StringField("buildId")
			case evt.Type == stream.FrameDone:
				status = evt.StringField("status")
			case evt.Kind == stream.KindError:
				f.failLocked(errorText(evt))
			}
			acc.Add(evt)
		})
	})

	var plan Plan
	var result error
	f.update(gen, func() {
		defer f.releaseLocked()
		switch {
		case f.state == StateError:
			result = errors.New(f.err)
		case streamErr != nil:
			f.failLocked(streamErr.Error())
			result = streamErr
		case status == "error":
			f.failLocked("planning failed")
			result = errors.New(f.err)
		default:
			plan = ParsePlan(acc.Text())
			stored := plan.Clone()
			f.plan = &stored
			f.state = StateShowingPlan
		}
	})
	if err := f.superseded(gen); err != nil {
		return Plan{}, err
	}
	return plan, result
}

// Approve executes the plan being shown. It returns once the build ends.
func (f *BuildFlow) Approve(ctx context.Context) error {
	ctx, gen, err := f.begin(ctx, StateBuilding, StateShowingPlan)
	if err != nil {
		return err
	}
	var req web.ExecuteRequest
	f.update(gen, func() {
		f.log = nil
		req = web.ExecuteRequest{BuildID: f.buildID, Plan: f.plan.Raw, RepoPath: f.repoPath}
	})

	status := ""
	streamErr := f.client.Stream(ctx, "/api/build/execute", req, func(evt stream.Event) {
		f.update(gen, func() {
			switch {
			case evt.Type == stream.FrameDone:
				status = evt.StringField("status")
			case evt.Kind == stream.KindError:
				f.failLocked(errorText(evt))
			case evt.Kind == stream.KindTextDelta && evt.Type != stream.TypeResult:
				f.log = append(f.log, evt.Text)
			}
		})
	})

	var result error
	f.update(gen, func() {
		defer f.releaseLocked()
		switch {
		case f.state == StateError:
			result = errors.New(f.err)
		case streamErr != nil:
			f.failLocked(streamErr.Error())
			result = streamErr
		case status == "completed":
			f.state = StateCompleted
		default:
			f.failLocked("build did not complete")
			result = errors.New(f.err)
		}
	})
	if err := f.superseded(gen); err != nil {
		return err
	}
	return result
}

// Cancel abandons any running phase and returns the flow to Idle.
func (f *BuildFlow) Cancel() {
	f.reset()
}

// Reset returns the flow to Idle, clearing the plan and any error.
func (f *BuildFlow) Reset() {
	f.reset()
}

func (f *BuildFlow) reset() {
	f.mu.Lock()
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.state = StateIdle
	f.buildID, f.plan, f.log, f.err = "", nil, nil, ""
	f.mu.Unlock()
	f.notify()
}

func (f *BuildFlow) releaseLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// superseded reports context.Canceled when a Cancel or Reset replaced gen.
func (f *BuildFlow) superseded(gen int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return context.Canceled
	}
	return nil
}

func errorText(evt stream.Event) string {
	if t := strings.TrimSpace(evt.Text); t != "" {
		return t
	}
	return "agent reported an error"
}
