// ABOUTME: ChromeBrowser implements Browser on a headless Chrome driven through chromedp.
// ABOUTME: The browser process starts on first capture; each capture uses a fresh tab.

package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the Chrome instance.
type ChromeOptions struct {
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Headless bool
	Logger   *log.Logger
}

// ChromeBrowser is a lazily started Chrome instance shared by sequential captures.
type ChromeBrowser struct {
	opts ChromeOptions

	startOnce sync.Once
	startErr  error
	closeOnce sync.Once

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewChromeBrowser returns a Browser that starts Chrome on first use.
func NewChromeBrowser(opts ChromeOptions) *ChromeBrowser {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &ChromeBrowser{opts: opts}
}

// ChromeFactory adapts ChromeOptions into a BrowserFactory.
func ChromeFactory(opts ChromeOptions) BrowserFactory {
	return func() (Browser, error) {
		return NewChromeBrowser(opts), nil
	}
}

func (b *ChromeBrowser) start() error {
	b.startOnce.Do(func() {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.opts.Headless),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("mute-audio", true),
		)
		if b.opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
			chromedp.WithLogf(func(format string, args ...any) {
				b.opts.Logger.Debugf(format, args...)
			}),
		)
		// An empty Run launches the browser process.
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			b.startErr = fmt.Errorf("start chrome: %w", err)
			return
		}
		b.browserCtx = browserCtx
		b.cancelBrowser = cancelBrowser
		b.cancelAlloc = cancelAlloc
		b.opts.Logger.Debug("chrome started")
	})
	return b.startErr
}

// Capture navigates a new tab to shot.URL and returns a PNG of the viewport,
// or of shot.Selector's element when it is present.
func (b *ChromeBrowser) Capture(ctx context.Context, shot Shot) ([]byte, error) {
	if _, err := ValidateURL(shot.URL); err != nil {
		return nil, err
	}
	if err := b.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(tabCtx)
	defer cancelRun()
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(shot.Width), int64(shot.Height)),
		chromedp.Navigate(shot.URL),
	}
	if shot.Settle > 0 {
		actions = append(actions, chromedp.Sleep(shot.Settle))
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", shot.URL, contextErr(ctx, err))
	}

	if shot.Selector != "" {
		var present bool
		sel, _ := json.Marshal(shot.Selector)
		expr := fmt.Sprintf("document.querySelector(%s) !== null", sel)
		if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &present)); err == nil && present {
			if err := chromedp.Run(runCtx, chromedp.Screenshot(shot.Selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
				return nil, fmt.Errorf("capture %s: %w", shot.Selector, contextErr(ctx, err))
			}
			return buf, nil
		}
	}

	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture %s: %w", shot.URL, contextErr(ctx, err))
	}
	return buf, nil
}

// Close shuts Chrome down. Safe to call when Chrome never started.
func (b *ChromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		if b.cancelBrowser != nil {
			b.cancelBrowser()
			b.cancelAlloc()
			b.opts.Logger.Debug("chrome closed")
		}
	})
	return nil
}

// contextErr prefers the caller's deadline error over chromedp's wrapping of it.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
