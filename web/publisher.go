// ABOUTME: Publisher abstracts the push transport of one turn; SSEPublisher writes "data: <json>" frames.
// ABOUTME: guardedPublisher stops all writes the moment the client disconnects.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Publisher writes one frame per call. Writes after the peer has gone away
// are silently dropped; only unencodable frames return an error.
type Publisher interface {
	Publish(frame any) error
	Close() error
}

// encodeFrame marshals frame, passing raw agent records through unchanged.
func encodeFrame(frame any) ([]byte, error) {
	switch v := frame.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		data, err := json.Marshal(frame)
		if err != nil {
			return nil, fmt.Errorf("encode frame: %w", err)
		}
		return data, nil
	}
}

// SSEPublisher streams frames as Server-Sent Events.
type SSEPublisher struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	closed  bool
}

// NewSSEPublisher writes the event-stream headers and flushes them so the
// client sees the response start immediately.
func NewSSEPublisher(w http.ResponseWriter, r *http.Request) (*SSEPublisher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEPublisher{w: w, flusher: flusher, ctx: r.Context()}, nil
}

// Publish writes one "data:" frame and flushes it.
func (p *SSEPublisher) Publish(frame any) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ctx.Err() != nil {
		return nil
	}
	if _, err := fmt.Fprintf(p.w, "data: %s\n\n", data); err != nil {
		p.closed = true
		return nil
	}
	p.flusher.Flush()
	return nil
}

// Close marks the stream finished; the handler returning ends the response.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// guardedPublisher is the publish side of the cancellation coordinator.
// After disconnect returns, no frame reaches the transport.
type guardedPublisher struct {
	mu           sync.Mutex
	pub          Publisher
	disconnected bool
}

func newGuardedPublisher(pub Publisher) *guardedPublisher {
	return &guardedPublisher{pub: pub}
}

func (g *guardedPublisher) Publish(frame any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disconnected {
		return nil
	}
	return g.pub.Publish(frame)
}

func (g *guardedPublisher) Close() error {
	return g.pub.Close()
}

func (g *guardedPublisher) disconnect() {
	g.mu.Lock()
	g.disconnected = true
	g.mu.Unlock()
}

func (g *guardedPublisher) isDisconnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnected
}
