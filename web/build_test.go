// ABOUTME: Tests for the plan/execute build endpoints and build lookup.
// ABOUTME: Verifies frame sequences, stored build rows, and agent arguments for each phase.
package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/kodejam/store"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const planAgent = `cat <<'EOF'
{"type":"assistant","message":{"content":[{"type":"text","text":"{\"summary\":\"Add header\",\"steps\":[]}"}]}}
EOF
`

func TestBuildPlanStoresPlan(t *testing.T) {
	env := newTestEnv(t, planAgent)

	rec := env.do(t, http.MethodPost, "/api/build/plan", PlanRequest{
		PageID:   "page-1",
		Shapes:   []Shape{{ID: "s1", Type: "rectangle", Label: "Header"}},
		RepoPath: env.repo,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	frames := parseSSE(t, rec.Body.String())
	if diff := cmp.Diff([]string{"build", "assistant", "done"}, frameTypes(frames)); diff != "" {
		t.Fatalf("frame types (-want +got):\n%s", diff)
	}

	buildID := frames[0].str("buildId")
	if buildID == "" {
		t.Fatal("build frame has no buildId")
	}
	done := frames[2]
	if done.str("buildId") != buildID || done.str("status") != "pending" || done.num("exitCode") != 0 {
		t.Errorf("done frame = %v", done)
	}

	b, err := env.store.GetBuild(context.Background(), buildID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if b.Status != store.BuildPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
	if b.Plan != `{"summary":"Add header","steps":[]}` {
		t.Errorf("plan = %q", b.Plan)
	}
	if diff := cmp.Diff([]string{"s1"}, b.SelectedShapes); diff != "" {
		t.Errorf("selected shapes (-want +got):\n%s", diff)
	}
}

func TestBuildPlanFailureMarksError(t *testing.T) {
	env := newTestEnv(t, "exit 4\n")
	rec := env.do(t, http.MethodPost, "/api/build/plan", PlanRequest{
		PageID: "page-1", Shapes: []Shape{}, RepoPath: env.repo,
	})
	frames := parseSSE(t, rec.Body.String())
	done := frames[len(frames)-1]
	if done.str("status") != "error" || done.num("exitCode") != 4 {
		t.Fatalf("done frame = %v", done)
	}
	b, err := env.store.GetBuild(context.Background(), frames[0].str("buildId"))
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if b.Status != store.BuildError || b.Error != "Process exited with code 4" {
		t.Errorf("build = %+v", b)
	}
	if b.CompletedAt == nil {
		t.Error("failed plan should be stamped complete")
	}
}

func TestBuildPlanValidation(t *testing.T) {
	env := newTestEnv(t, "")
	tests := []struct {
		name string
		req  PlanRequest
	}{
		{"missing page", PlanRequest{Shapes: []Shape{}, RepoPath: env.repo}},
		{"missing shapes", PlanRequest{PageID: "p", RepoPath: env.repo}},
		{"missing repo", PlanRequest{PageID: "p", Shapes: []Shape{}}},
		{"relative repo", PlanRequest{PageID: "p", Shapes: []Shape{}, RepoPath: "repo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/build/plan", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func seedBuild(t *testing.T, env *testEnv) string {
	t.Helper()
	id := newBuildID()
	if err := env.store.CreateBuild(context.Background(), store.Build{
		ID: id, PageID: "page-1", Status: store.BuildPending, Plan: "do it",
	}); err != nil {
		t.Fatalf("CreateBuild: %v", err)
	}
	return id
}

func TestBuildExecuteCompletes(t *testing.T) {
	env := newTestEnv(t, `printf '%s\n' "$@" > "$PWD/args.txt"
echo '{"type":"assistant","message":{"content":"built"}}'
`)
	id := seedBuild(t, env)

	rec := env.do(t, http.MethodPost, "/api/build/execute", ExecuteRequest{BuildID: id, Plan: "do it", RepoPath: env.repo})
	frames := parseSSE(t, rec.Body.String())
	if diff := cmp.Diff([]string{"build", "assistant", "done"}, frameTypes(frames)); diff != "" {
		t.Fatalf("frame types (-want +got):\n%s", diff)
	}
	if frames[0].str("status") != "building" {
		t.Errorf("build frame = %v", frames[0])
	}
	if frames[2].str("status") != "completed" {
		t.Errorf("done frame = %v", frames[2])
	}

	b, err := env.store.GetBuild(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if b.Status != store.BuildCompleted || b.Result != "built" || b.CompletedAt == nil {
		t.Errorf("build = %+v", b)
	}

	args, err := os.ReadFile(filepath.Join(env.repo, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(args)), "\n")
	for _, want := range []string{"--max-turns\n50", "--allowedTools\nRead,Write,Edit,Bash,Glob,Grep"} {
		if !strings.Contains(strings.Join(got, "\n"), want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestBuildExecuteFailure(t *testing.T) {
	env := newTestEnv(t, "exit 2\n")
	id := seedBuild(t, env)

	rec := env.do(t, http.MethodPost, "/api/build/execute", ExecuteRequest{BuildID: id, Plan: "do it", RepoPath: env.repo})
	frames := parseSSE(t, rec.Body.String())
	done := frames[len(frames)-1]
	if done.str("status") != "error" || done.num("exitCode") != 2 {
		t.Fatalf("done frame = %v", done)
	}
	b, err := env.store.GetBuild(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if b.Status != store.BuildError || b.Error != "Process exited with code 2" {
		t.Errorf("build = %+v", b)
	}
}

func TestBuildExecuteUnknownBuild(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/api/build/execute", ExecuteRequest{BuildID: "nope", Plan: "x", RepoPath: env.repo})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestBuildExecuteValidation(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/api/build/execute", ExecuteRequest{BuildID: "b"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestGetBuild(t *testing.T) {
	env := newTestEnv(t, "")
	id := seedBuild(t, env)

	rec := env.do(t, http.MethodGet, "/api/build/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var b store.Build
	decodeBody(t, rec, &b)
	if b.ID != id || b.Status != store.BuildPending || b.Plan != "do it" {
		t.Errorf("build = %+v", b)
	}

	rec = env.do(t, http.MethodGet, "/api/build/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestBuildExecutePersistFailureStillEndsWithDone(t *testing.T) {
	env := newTestEnv(t, `sleep 0.5
echo '{"type":"assistant","message":{"content":"built"}}'
`)
	id := seedBuild(t, env)
	closeStore := time.AfterFunc(150*time.Millisecond, func() { _ = env.store.Close() })
	defer closeStore.Stop()

	rec := env.do(t, http.MethodPost, "/api/build/execute", ExecuteRequest{BuildID: id, Plan: "do it", RepoPath: env.repo})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	frames := parseSSE(t, rec.Body.String())
	if diff := cmp.Diff([]string{"build", "assistant", "done"}, frameTypes(frames)); diff != "" {
		t.Fatalf("frame types (-want +got):\n%s", diff)
	}
	done := frames[2]
	if done.str("buildId") != id || done.str("status") != "completed" || done.num("exitCode") != 0 {
		t.Errorf("done frame = %v", done)
	}
	if got := testutil.ToFloat64(env.srv.metrics.persistFailures); got != 1 {
		t.Errorf("persist failures = %v, want 1", got)
	}
}

func TestBuildPlanUnstreamableResponseReleasesTurn(t *testing.T) {
	env := newTestEnv(t, "sleep 5\n")

	w := newPlainWriter()
	env.srv.handleBuildPlan(w, jsonRequest(t, "/api/build/plan", PlanRequest{
		PageID: "page-1", Shapes: []Shape{}, RepoPath: env.repo,
	}))
	if w.code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.code)
	}
	if got := testutil.ToFloat64(env.srv.metrics.activeTurns); got != 0 {
		t.Errorf("active turns = %v, want 0", got)
	}
	if got := testutil.ToFloat64(env.srv.metrics.turns.WithLabelValues(kindPlan, "stream_error")); got != 1 {
		t.Errorf("stream_error turns = %v, want 1", got)
	}
}
