// ABOUTME: Process is the handle to one running agent: output pipes, exit status, and group termination.
// ABOUTME: Terminate is idempotent: SIGTERM to the process group, then SIGKILL after a grace period.

package agent

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// Process is a started agent. Stdout and Stderr may be read concurrently
// with Wait; reads end with io.EOF once every holder of the pipe has exited.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	grace  time.Duration
	logger *log.Logger

	done     chan struct{}
	exitCode int
	waitErr  error

	termOnce   sync.Once
	terminated bool
	mu         sync.Mutex
}

// Stdout returns the agent's standard output stream.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the agent's standard error stream.
func (p *Process) Stderr() io.Reader { return p.stderr }

// Pid returns the OS process id, which is also the process group id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.done }

// Wait blocks until the process exits and returns its exit code. A process
// killed by a signal reports 128 plus the signal number. Wait may be called
// any number of times.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

// Terminated reports whether Terminate has signalled the process.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Terminate asks the whole process group to stop. It is safe to call more
// than once and after the process has already exited.
func (p *Process) Terminate() {
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		pgid := p.cmd.Process.Pid
		p.mu.Lock()
		p.terminated = true
		p.mu.Unlock()

		if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			p.logger.Warn("sigterm failed", "err", err)
		}
		p.logger.Info("agent terminated")

		go func() {
			t := time.NewTimer(p.grace)
			defer t.Stop()
			select {
			case <-p.done:
			case <-t.C:
				p.logger.Warn("agent ignored sigterm, killing group")
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
			}
		}()
	})
}

// Close releases the read ends of the output pipes. Pending reads fail.
func (p *Process) Close() error {
	return errors.Join(p.stdout.Close(), p.stderr.Close())
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				code = 128 + int(ws.Signal())
			}
		} else {
			code = -1
			p.waitErr = err
		}
	}
	p.exitCode = code
	p.logger.Debug("agent exited", "code", code)
	close(p.done)
}
