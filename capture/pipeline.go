// ABOUTME: Pipeline turns screenshot commands into PNG files, one URL at a time, in order.
// ABOUTME: One browser per batch, opened lazily and closed once; a failed URL is logged and skipped.

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389-research/kodejam/stream"
	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
)

// Defaults applied when the corresponding Pipeline field is zero.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 800
	DefaultTimeout = 30 * time.Second
	DefaultSettle  = time.Second
)

// Capture outcomes reported to a Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Recorder observes each capture attempt.
type Recorder interface {
	ObserveCapture(outcome string, d time.Duration)
}

// Result is one successfully captured URL.
type Result struct {
	SourceURL   string
	Description string
	// ImageRef is how clients fetch the image; see Pipeline.RefFor.
	ImageRef string
	FileName string
	FilePath string
	Width    int
	Height   int
}

// Pipeline runs captures sequentially. It is safe for concurrent use; each
// call gets its own browser.
type Pipeline struct {
	NewBrowser BrowserFactory
	Width      int
	Height     int
	Timeout    time.Duration
	Settle     time.Duration
	// RefFor maps a written file name to the reference published to clients.
	// When nil the absolute file path is used.
	RefFor   func(fileName string) string
	Logger   *log.Logger
	Recorder Recorder
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

// Viewport fills in the pipeline defaults for a zero width or height.
func (p *Pipeline) Viewport(w, h int) (int, int) {
	if w <= 0 {
		w = p.Width
	}
	if h <= 0 {
		h = p.Height
	}
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

func (p *Pipeline) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p *Pipeline) settle() time.Duration {
	if p.Settle < 0 {
		return 0
	}
	if p.Settle == 0 {
		return DefaultSettle
	}
	return p.Settle
}

func (p *Pipeline) observe(outcome string, start time.Time) {
	if p.Recorder != nil {
		p.Recorder.ObserveCapture(outcome, time.Since(start))
	}
}

// session shares one lazily opened browser across a batch.
type session struct {
	p       *Pipeline
	browser Browser
}

func (s *session) shoot(ctx context.Context, shot Shot) ([]byte, error) {
	if s.browser == nil {
		if s.p.NewBrowser == nil {
			return nil, errors.New("capture: no browser configured")
		}
		b, err := s.p.NewBrowser()
		if err != nil {
			return nil, fmt.Errorf("open browser: %w", err)
		}
		s.browser = b
	}
	ctx, cancel := context.WithTimeout(ctx, s.p.timeout())
	defer cancel()
	return s.browser.Capture(ctx, shot)
}

func (s *session) close() {
	if s.browser == nil {
		return
	}
	if err := s.browser.Close(); err != nil {
		s.p.logger().Warn("browser close failed", "err", err)
	}
	s.browser = nil
}

// Snapshot captures each shot in order with a shared browser and reports
// every outcome to fn, including failures. It stops early only when ctx ends.
func (p *Pipeline) Snapshot(ctx context.Context, shots []Shot, fn func(i int, png []byte, err error)) error {
	s := &session{p: p}
	defer s.close()

	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		shot.Width, shot.Height = p.Viewport(shot.Width, shot.Height)
		if shot.Settle == 0 {
			shot.Settle = p.settle()
		}
		if _, err := ValidateURL(shot.URL); err != nil {
			p.observe(OutcomeRejected, start)
			fn(i, nil, err)
			continue
		}
		png, err := s.shoot(ctx, shot)
		if err != nil {
			p.observe(OutcomeFailed, start)
		} else {
			p.observe(OutcomeOK, start)
		}
		fn(i, png, err)
	}
	return nil
}

// CaptureEach captures every URL of every command in order, writes each
// image into outputDir and calls fn with the result as soon as it is ready.
// URLs that fail are logged and produce no result.
func (p *Pipeline) CaptureEach(ctx context.Context, cmds []stream.Command, outputDir string, fn func(Result)) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}

	type target struct {
		url, desc string
	}
	var targets []target
	var shots []Shot
	for _, cmd := range cmds {
		for i, u := range cmd.URLs {
			targets = append(targets, target{url: u, desc: cmd.Description(i)})
			shots = append(shots, Shot{URL: u})
		}
	}
	if len(shots) == 0 {
		return nil
	}

	logger := p.logger()
	return p.Snapshot(ctx, shots, func(i int, png []byte, err error) {
		t := targets[i]
		if err != nil {
			logger.Warn("screenshot skipped", "url", t.url, "err", err)
			return
		}
		name := "screenshot-" + strings.ToLower(ulid.Make().String()) + ".png"
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, png, 0o644); err != nil {
			logger.Warn("screenshot write failed", "url", t.url, "path", path, "err", err)
			return
		}
		w, h := p.Viewport(0, 0)
		ref := path
		if p.RefFor != nil {
			ref = p.RefFor(name)
		}
		logger.Info("screenshot captured", "url", t.url, "file", name)
		fn(Result{
			SourceURL:   t.url,
			Description: t.desc,
			ImageRef:    ref,
			FileName:    name,
			FilePath:    path,
			Width:       w,
			Height:      h,
		})
	})
}

// Capture is CaptureEach collecting the results into a slice.
func (p *Pipeline) Capture(ctx context.Context, cmds []stream.Command, outputDir string) ([]Result, error) {
	var results []Result
	err := p.CaptureEach(ctx, cmds, outputDir, func(r Result) {
		results = append(results, r)
	})
	return results, err
}
