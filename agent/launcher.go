// ABOUTME: Launcher starts the external coding agent as a child process in its own process group.
// ABOUTME: Arguments are passed as an argv vector; stdout/stderr are exposed as pipes on the Process handle.

package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultBinary is the agent executable looked up on PATH.
const DefaultBinary = "claude"

// DefaultGrace is how long a terminated process group gets between SIGTERM and SIGKILL.
const DefaultGrace = 2 * time.Second

// Request describes one agent invocation.
type Request struct {
	Prompt       string
	AllowedTools []string
	WorkDir      string
	// MaxTurns overrides the launcher's default when positive.
	MaxTurns int
}

// Launcher holds the process-wide settings shared by every invocation.
// The zero value launches DefaultBinary with inherited environment.
type Launcher struct {
	Binary    string
	MaxTurns  int
	ExtraArgs []string
	Grace     time.Duration
	EnvPolicy EnvPolicy
	Env       map[string]string
	Logger    *log.Logger
}

// LaunchError reports that the agent process could not be started.
type LaunchError struct {
	Op   string // "workdir", "lookup" or "start"
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch agent: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Args returns the argument vector for req, excluding the binary.
func (l *Launcher) Args(req Request) []string {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--allowedTools", strings.Join(req.AllowedTools, ","),
	}
	maxTurns := l.MaxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}
	if maxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(maxTurns))
	}
	return append(args, l.ExtraArgs...)
}

// Launch starts the agent for req. The working directory is created if it
// does not exist. When ctx ends before the process exits, the process group
// is terminated.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Process, error) {
	if req.WorkDir == "" {
		return nil, &LaunchError{Op: "workdir", Err: fmt.Errorf("working directory is required")}
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, &LaunchError{Op: "workdir", Path: req.WorkDir, Err: err}
	}

	bin := l.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, &LaunchError{Op: "lookup", Path: bin, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Op: "start", Path: path, Err: err}
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Op: "start", Path: path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, &LaunchError{Op: "start", Path: path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd := exec.Command(path, l.Args(req)...)
	cmd.Dir = req.WorkDir
	cmd.Env = buildEnv(l.EnvPolicy, l.Env)
	cmd.Stdout = outW
	cmd.Stderr = errW
	// Process group so terminate reaches anything the agent spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, &LaunchError{Op: "start", Path: path, Err: err}
	}
	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()

	grace := l.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Process{
		cmd:    cmd,
		stdout: outR,
		stderr: errR,
		grace:  grace,
		logger: logger.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}
	p.logger.Debug("agent started", "dir", req.WorkDir, "tools", strings.Join(req.AllowedTools, ","))

	go p.reap()
	go func() {
		select {
		case <-ctx.Done():
			p.Terminate()
		case <-p.done:
		}
	}()
	return p, nil
}
