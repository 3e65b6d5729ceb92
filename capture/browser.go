// ABOUTME: Browser is the black-box page capture capability used by the pipeline.
// ABOUTME: Also holds the URL scheme allow-list applied before any navigation.

package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrSchemeNotAllowed is returned for URLs that are not http or https.
	ErrSchemeNotAllowed = errors.New("capture: only http and https URLs are allowed")
	// ErrInvalidURL is returned for URLs that cannot be parsed or have no host.
	ErrInvalidURL = errors.New("capture: invalid URL")
)

// Shot describes one page capture.
type Shot struct {
	URL    string
	Width  int
	Height int
	// Selector limits the capture to one element when it exists on the page.
	Selector string
	// Settle is how long to wait after load before capturing.
	Settle time.Duration
}

// Browser captures rendered pages as PNG bytes. Capture must honour ctx's
// deadline. Close releases the underlying engine and is called exactly once.
type Browser interface {
	Capture(ctx context.Context, shot Shot) ([]byte, error)
	Close() error
}

// BrowserFactory opens a Browser. The pipeline calls it lazily, at most once
// per batch.
type BrowserFactory func() (Browser, error)

// ValidateURL parses raw and enforces the http/https allow-list.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}
