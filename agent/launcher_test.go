// ABOUTME: Tests for the agent launcher using small shell scripts as the agent binary.
// ABOUTME: Covers argv passing, workdir creation, exit codes, and process-group termination.

package agent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testLauncher(bin string) *Launcher {
	return &Launcher{Binary: bin, Grace: 200 * time.Millisecond, Logger: log.New(io.Discard)}
}

func waitExit(t *testing.T, p *Process) int {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return code
}

func TestLaunchStreamsOutputAndExitCode(t *testing.T) {
	bin := writeScript(t, `echo '{"type":"text","text":"hi"}'
echo 'oops' >&2
exit 3
`)
	p, err := testLauncher(bin).Launch(context.Background(), Request{
		Prompt: "hello", AllowedTools: ReadOnlyTools, WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	out, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	errOut, err := io.ReadAll(p.Stderr())
	if err != nil {
		t.Fatalf("read stderr: %v", err)
	}
	if got := string(out); got != "{\"type\":\"text\",\"text\":\"hi\"}\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := string(errOut); got != "oops\n" {
		t.Errorf("stderr = %q", got)
	}
	if code := waitExit(t, p); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if p.Pid() <= 0 {
		t.Errorf("Pid = %d", p.Pid())
	}
}

func TestLaunchPassesArgumentVector(t *testing.T) {
	bin := writeScript(t, `for a in "$@"; do printf '%s\n' "$a"; done
`)
	prompt := `it's "quoted" $(touch pwned) ; echo; rm -rf /nope`
	l := testLauncher(bin)
	l.MaxTurns = 50
	l.ExtraArgs = []string{"--model", "sonnet"}
	dir := t.TempDir()
	p, err := l.Launch(context.Background(), Request{Prompt: prompt, AllowedTools: ReadWriteTools, WorkDir: dir})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	out, _ := io.ReadAll(p.Stdout())
	waitExit(t, p)

	got := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	want := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--allowedTools", "Read,Write,Edit,Bash,Glob,Grep",
		"--max-turns", "50",
		"--model", "sonnet",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "pwned")); err == nil {
		t.Error("prompt was interpreted by a shell")
	}
}

func TestArgsRequestMaxTurnsOverrides(t *testing.T) {
	l := &Launcher{MaxTurns: 10}
	args := l.Args(Request{Prompt: "p", AllowedTools: []string{"Read"}, MaxTurns: 3})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--max-turns 3") {
		t.Errorf("args = %v, want --max-turns 3", args)
	}

	args = (&Launcher{}).Args(Request{Prompt: "p"})
	for _, a := range args {
		if a == "--max-turns" {
			t.Errorf("args = %v, want no --max-turns", args)
		}
	}
}

func TestLaunchCreatesWorkDir(t *testing.T) {
	bin := writeScript(t, "pwd\n")
	dir := filepath.Join(t.TempDir(), "nested", "repo")
	p, err := testLauncher(bin).Launch(context.Background(), Request{Prompt: "x", WorkDir: dir})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	out, _ := io.ReadAll(p.Stdout())
	waitExit(t, p)

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestLaunchMissingBinary(t *testing.T) {
	l := testLauncher(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := l.Launch(context.Background(), Request{Prompt: "x", WorkDir: t.TempDir()})
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}
	if le.Op != "lookup" {
		t.Errorf("Op = %q, want lookup", le.Op)
	}
}

func TestLaunchUncreatableWorkDir(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := testLauncher(bin).Launch(context.Background(), Request{Prompt: "x", WorkDir: filepath.Join(file, "sub")})
	var le *LaunchError
	if !errors.As(err, &le) || le.Op != "workdir" {
		t.Fatalf("err = %v, want workdir LaunchError", err)
	}
}

func TestTerminateStopsProcessGroup(t *testing.T) {
	bin := writeScript(t, `echo ready
sleep 30
`)
	p, err := testLauncher(bin).Launch(context.Background(), Request{Prompt: "x", WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	if err != nil || line != "ready\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}

	p.Terminate()
	p.Terminate()
	if code := waitExit(t, p); code != 128+15 {
		t.Errorf("exit code = %d, want %d", code, 128+15)
	}
	if !p.Terminated() {
		t.Error("Terminated = false after Terminate")
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	bin := writeScript(t, `trap '' TERM
echo ready
while :; do sleep 0.1; done
`)
	p, err := testLauncher(bin).Launch(context.Background(), Request{Prompt: "x", WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if _, err := bufio.NewReader(p.Stdout()).ReadString('\n'); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	p.Terminate()
	if code := waitExit(t, p); code != 128+9 {
		t.Errorf("exit code = %d, want %d", code, 128+9)
	}
}

func TestTerminateAfterExitIsNoop(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	p, err := testLauncher(bin).Launch(context.Background(), Request{Prompt: "x", WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if code := waitExit(t, p); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	p.Terminate()
	p.Terminate()
	if p.Terminated() {
		t.Error("Terminated = true for a process that had already exited")
	}
	if code, _ := p.Wait(); code != 0 {
		t.Errorf("second Wait = %d, want 0", code)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLaunchContextCancelTerminates(t *testing.T) {
	bin := writeScript(t, `echo ready
sleep 30
`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := testLauncher(bin).Launch(ctx, Request{Prompt: "x", WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if _, err := bufio.NewReader(p.Stdout()).ReadString('\n'); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	cancel()
	waitExit(t, p)
	if !p.Terminated() {
		t.Error("context cancel did not terminate the process")
	}
}
