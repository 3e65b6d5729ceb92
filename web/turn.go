// ABOUTME: Turn orchestration: pumps agent stdout/stderr into frames, coordinates cancellation, and runs captures.
// ABOUTME: A client disconnect stops all publishing and terminates the agent, but the turn's text is still returned.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/2389-research/kodejam/agent"
	"github.com/2389-research/kodejam/capture"
	"github.com/2389-research/kodejam/stream"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Turn kinds, used as metric labels and log keys.
const (
	kindChat    = "chat"
	kindPlan    = "plan"
	kindExecute = "execute"
)

const readChunkBytes = 32 * 1024

type turnSpec struct {
	kind     string
	req      agent.Request
	repoPath string
	// capture enables screenshot command extraction once the agent exits.
	capture bool
	logger  *log.Logger
}

type turnResult struct {
	text         string
	display      string
	exitCode     int
	disconnected bool
	timedOut     bool
	captures     []capture.Result
	duration     time.Duration
}

func (r turnResult) outcome() string {
	switch {
	case r.disconnected:
		return "disconnected"
	case r.timedOut:
		return "timeout"
	case r.exitCode != 0:
		return "error"
	default:
		return "ok"
	}
}

// screenshotDir is where a repository's captures are written.
func screenshotDir(repoPath string) string {
	return filepath.Join(repoPath, ".kodejam", "screenshots")
}

// launchTurn starts the agent. It runs before any response byte is written,
// so callers can still answer with a plain HTTP error.
func (s *Server) launchTurn(ctx context.Context, spec turnSpec) (*agent.Process, error) {
	proc, err := s.launcher.Launch(ctx, spec.req)
	if err != nil {
		s.metrics.turns.WithLabelValues(spec.kind, "launch_error").Inc()
		spec.logger.Error("agent launch failed", "err", err)
		return nil, err
	}
	s.metrics.turnStarted()
	spec.logger.Info("agent turn started", "pid", proc.Pid(), "dir", spec.req.WorkDir)
	return proc, nil
}

// streamTurn publishes the agent's output until it exits and returns what
// the turn produced. It never writes the final done frame; the caller does
// that after persisting.
func (s *Server) streamTurn(ctx context.Context, pub *guardedPublisher, proc *agent.Process, spec turnSpec) turnResult {
	start := time.Now()
	logger := spec.logger.With("pid", proc.Pid())
	defer proc.Close()

	stop := context.AfterFunc(ctx, func() {
		pub.disconnect()
		proc.Terminate()
		logger.Info("client disconnected, agent terminated")
	})
	defer stop()

	var timedOut atomic.Bool
	if s.cfg.TurnTimeout > 0 {
		timer := time.AfterFunc(s.cfg.TurnTimeout, func() {
			timedOut.Store(true)
			logger.Warn("agent turn timed out", "timeout", s.cfg.TurnTimeout)
			proc.Terminate()
		})
		defer timer.Stop()
	}

	var acc stream.Accumulator
	var g errgroup.Group
	g.Go(func() error { return s.pumpStdout(proc.Stdout(), pub, &acc, logger) })
	g.Go(func() error { return s.pumpStderr(proc.Stderr(), pub, logger) })

	readers := make(chan error, 1)
	go func() { readers <- g.Wait() }()

	var readErr error
	select {
	case readErr = <-readers:
	case <-proc.Exited():
		// Something the agent spawned may still hold the pipes open.
		select {
		case readErr = <-readers:
		case <-time.After(s.cfg.DrainTimeout):
			logger.Warn("agent output still open after exit, closing pipes")
			_ = proc.Close()
			readErr = <-readers
		}
	}
	if readErr != nil {
		logger.Warn("reading agent output failed", "err", readErr)
	}

	code, err := proc.Wait()
	if err != nil {
		logger.Warn("agent wait failed", "err", err)
	}

	res := turnResult{
		text:         acc.Text(),
		exitCode:     code,
		disconnected: pub.isDisconnected(),
		timedOut:     timedOut.Load(),
	}
	res.display = res.text
	logger.Info("agent exited", "code", code, "chars", len(res.text), "disconnected", res.disconnected)

	if res.timedOut {
		_ = pub.Publish(errorFrame(fmt.Sprintf("agent turn exceeded %s and was terminated", s.cfg.TurnTimeout)))
	}
	if spec.capture && !res.disconnected {
		s.captureTurn(ctx, pub, spec, &res, logger)
		res.disconnected = pub.isDisconnected()
	}
	res.duration = time.Since(start)
	return res
}

func (s *Server) captureTurn(ctx context.Context, pub *guardedPublisher, spec turnSpec, res *turnResult, logger *log.Logger) {
	cmds, display := stream.Extract(res.text)
	res.display = display
	if len(cmds) == 0 {
		return
	}
	if s.pipeline == nil {
		logger.Warn("screenshot requested but capture is not configured", "commands", len(cmds))
		return
	}

	_ = pub.Publish(stream.NewCapturingFrame())
	p := *s.pipeline
	p.Logger = logger
	p.RefFor = func(name string) string { return screenshotURL(spec.repoPath, name) }

	err := p.CaptureEach(ctx, cmds, screenshotDir(spec.repoPath), func(r capture.Result) {
		res.captures = append(res.captures, r)
		_ = pub.Publish(stream.ScreenshotFrame{
			Type:        stream.FrameScreenshot,
			URL:         r.SourceURL,
			Description: r.Description,
			ImageURL:    r.ImageRef,
			Width:       r.Width,
			Height:      r.Height,
			FilePath:    r.FilePath,
		})
	})
	if err != nil {
		logger.Warn("screenshot capture stopped", "err", err)
	}
}

// finishTurn records the turn's metrics.
func (s *Server) finishTurn(spec turnSpec, res turnResult) {
	s.metrics.turnFinished(spec.kind, res.outcome(), res.duration)
}

// abandonTurn stops a launched agent whose response could not be streamed.
func (s *Server) abandonTurn(spec turnSpec, proc *agent.Process, err error) {
	proc.Terminate()
	spec.logger.Error("cannot stream agent turn", "err", err)
	s.metrics.turnFinished(spec.kind, "stream_error", 0)
}

func (s *Server) pumpStdout(r io.Reader, pub Publisher, acc *stream.Accumulator, logger *log.Logger) error {
	lb := stream.NewLineBuffer(s.cfg.MaxLineBytes)
	handle := func(line string) {
		evt, ok := stream.Normalize(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				s.metrics.droppedLines.WithLabelValues("unparsable").Inc()
				logger.Debug("dropped non-JSON agent output", "line", truncate(line, 200))
			}
			return
		}
		s.metrics.events.WithLabelValues(evt.Kind.String()).Inc()
		acc.Add(evt)
		_ = pub.Publish(evt.Raw)
	}
	return readLines(r, lb, handle, func() {
		s.metrics.droppedLines.WithLabelValues("too_long").Inc()
		logger.Warn("agent output line over limit dropped")
	})
}

func (s *Server) pumpStderr(r io.Reader, pub Publisher, logger *log.Logger) error {
	lb := stream.NewLineBuffer(s.cfg.MaxLineBytes)
	handle := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		logger.Warn("agent stderr", "line", truncate(line, 500))
		_ = pub.Publish(errorFrame(line))
	}
	return readLines(r, lb, handle, func() {
		logger.Warn("agent stderr line over limit dropped")
	})
}

// readLines feeds r through lb until EOF, calling handle for each line.
func readLines(r io.Reader, lb *stream.LineBuffer, handle func(string), tooLong func()) error {
	buf := make([]byte, readChunkBytes)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines, ferr := lb.Feed(buf[:n])
			if ferr != nil {
				tooLong()
			}
			for _, line := range lines {
				handle(line)
			}
		}
		if err != nil {
			if rest, ok := lb.Flush(); ok {
				handle(rest)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read agent output: %w", err)
		}
	}
}

func errorFrame(msg string) stream.ErrorFrame {
	return stream.NewErrorFrame(msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
