// ABOUTME: WebSocket transport for chat: the same frames as SSE, one text message each.
// ABOUTME: The first client message is the chat request; a closed socket counts as a disconnect.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSPublisher writes frames as WebSocket text messages.
type WSPublisher struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSPublisher wraps an upgraded connection.
func NewWSPublisher(conn *websocket.Conn) *WSPublisher {
	return &WSPublisher{conn: conn}
}

// Publish sends one frame. Errors mark the publisher closed.
func (p *WSPublisher) Publish(frame any) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.closed = true
	}
	return nil
}

// Close sends a normal close frame and closes the connection.
func (p *WSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.conn.Close()
	}
	p.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	return p.conn.Close()
}

type wsControl struct {
	Type string `json:"type"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	pub := NewWSPublisher(conn)
	defer pub.Close()

	var req ChatRequest
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn("websocket read request failed", "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if err := json.Unmarshal(data, &req); err != nil {
		_ = pub.Publish(errorFrame("invalid chat request: " + err.Error()))
		return
	}
	if msg := req.validate(); msg != "" {
		_ = pub.Publish(errorFrame(msg))
		return
	}
	if msg := s.checkRepo(req.Context.RepoPath); msg != "" {
		_ = pub.Publish(errorFrame(msg))
		return
	}

	// Hijacked connections do not cancel the request context, so the read
	// loop stands in for it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctl wsControl
			if json.Unmarshal(data, &ctl) == nil && ctl.Type == "cancel" {
				return
			}
		}
	}()

	turn, err := s.prepareChat(ctx, req)
	if err != nil {
		_ = pub.Publish(errorFrame(err.Error()))
		return
	}
	s.runChat(ctx, pub, turn)
}
