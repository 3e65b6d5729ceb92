// ABOUTME: HTTP client for the kodejam server: posts a turn and consumes its SSE frames as normalized events.
// ABOUTME: Reuses the stream package's line buffer and normalizer on the response body.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
	"github.com/charmbracelet/log"
)

// HTTPError is a non-2xx answer from the server, returned before any frame.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to one kodejam server.
type Client struct {
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token        string
	HTTPClient   *http.Client
	Logger       *log.Logger
	MaxLineBytes int
}

// New returns a Client for baseURL using http.DefaultClient.
func New(baseURL, token string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func readHTTPError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &HTTPError{Status: resp.StatusCode, Message: body.Error}
}

// Stream posts body to path and calls fn for every frame of the response,
// in order. It returns nil when the server ends the stream, the context's
// error when ctx is cancelled, and an *HTTPError when the server refused
// the turn.
func (c *Client) Stream(ctx context.Context, path string, body any, fn func(stream.Event)) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}

	lb := stream.NewLineBuffer(c.MaxLineBytes)
	handle := func(line string) {
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			return
		}
		evt, ok := stream.Normalize(payload)
		if !ok {
			c.logger().Debug("dropped unparsable frame", "frame", payload)
			return
		}
		fn(evt)
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			lines, ferr := lb.Feed(buf[:n])
			if ferr != nil {
				c.logger().Warn("frame over limit dropped", "path", path)
			}
			for _, line := range lines {
				handle(line)
			}
		}
		if err != nil {
			if rest, ok := lb.Flush(); ok {
				handle(rest)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LatestThread fetches the most recent thread of a page. A page without
// threads yields an *HTTPError with status 404.
func (c *Client) LatestThread(ctx context.Context, pageID string) (*store.Thread, error) {
	var t store.Thread
	if err := c.getJSON(ctx, "/api/chat/threads?pageId="+url.QueryEscape(pageID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBuild fetches a build row.
func (c *Client) GetBuild(ctx context.Context, buildID string) (*store.Build, error) {
	var b store.Build
	if err := c.getJSON(ctx, "/api/build/"+url.PathEscape(buildID), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}
