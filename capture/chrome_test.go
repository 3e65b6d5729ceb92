// ABOUTME: Integration test for ChromeBrowser against a local httptest page.
// ABOUTME: Runs only when KODEJAM_CHROME_TESTS is set, since it needs a Chrome binary.

package capture

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestChromeBrowserCapture(t *testing.T) {
	if os.Getenv("KODEJAM_CHROME_TESTS") == "" {
		t.Skip("set KODEJAM_CHROME_TESTS=1 to run Chrome integration tests")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1 id="title">hello</h1></body></html>`))
	}))
	defer srv.Close()

	b := NewChromeBrowser(ChromeOptions{Headless: true, ExecPath: os.Getenv("KODEJAM_CHROME_PATH"), Logger: log.New(io.Discard)})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, sel := range []string{"", "#title", "#missing"} {
		png, err := b.Capture(ctx, Shot{URL: srv.URL, Width: 800, Height: 600, Selector: sel})
		if err != nil {
			t.Fatalf("Capture(%q): %v", sel, err)
		}
		if !bytes.HasPrefix(png, []byte("\x89PNG")) {
			t.Errorf("Capture(%q) did not return a PNG", sel)
		}
	}
}

func TestChromeBrowserCloseWithoutStart(t *testing.T) {
	b := NewChromeBrowser(ChromeOptions{Logger: log.New(io.Discard)})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestChromeBrowserRejectsSchemeBeforeStart(t *testing.T) {
	b := NewChromeBrowser(ChromeOptions{Logger: log.New(io.Discard)})
	defer b.Close()
	if _, err := b.Capture(context.Background(), Shot{URL: "file:///etc/passwd"}); err == nil {
		t.Fatal("expected scheme error")
	}
	if b.browserCtx != nil {
		t.Error("browser started for a rejected URL")
	}
}
