// ABOUTME: Conversation is the client side of a chat thread: it sends turns and accumulates streamed text.
// ABOUTME: Cancelling a turn keeps whatever text had arrived; nothing already shown is discarded.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
	"github.com/2389-research/kodejam/web"
)

// ErrBusy is returned by Send while another turn is in flight.
var ErrBusy = errors.New("client: a turn is already in progress")

// Screenshot is a capture announced during a turn.
type Screenshot struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Message is one transcript entry as the client shows it.
type Message struct {
	Role        store.Role
	Content     string
	Screenshots []Screenshot
	// Errors holds in-band error frames received during the turn.
	Errors []string
	// Partial marks an assistant message whose turn was cancelled or cut off.
	Partial  bool
	ExitCode int
}

// Conversation runs chat turns against one page. It is safe for concurrent
// use; at most one turn runs at a time.
type Conversation struct {
	client  *Client
	context web.ChatContext

	// OnEvent, when set, sees every frame of the running turn.
	OnEvent func(stream.Event)

	mu       sync.Mutex
	threadID string
	messages []Message
	busy     bool
	cancel   context.CancelFunc
}

// NewConversation starts an empty conversation for the given page context.
func NewConversation(c *Client, chatCtx web.ChatContext) *Conversation {
	return &Conversation{client: c, context: chatCtx}
}

// ThreadID returns the server-assigned thread id, empty before the first turn.
func (cv *Conversation) ThreadID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.threadID
}

// Resume loads a stored thread so the next turn continues it.
func (cv *Conversation) Resume(t *store.Thread) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.threadID = t.ID
	cv.messages = cv.messages[:0]
	for _, m := range t.Messages {
		cv.messages = append(cv.messages, Message{Role: m.Role, Content: m.Content})
	}
}

// Messages returns a copy of the transcript, including an in-flight reply.
func (cv *Conversation) Messages() []Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]Message, len(cv.messages))
	for i, m := range cv.messages {
		m.Screenshots = append([]Screenshot(nil), m.Screenshots...)
		m.Errors = append([]string(nil), m.Errors...)
		out[i] = m
	}
	return out
}

// Busy reports whether a turn is running.
func (cv *Conversation) Busy() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.busy
}

// Cancel aborts the running turn, if any. The partial reply is kept.
func (cv *Conversation) Cancel() {
	cv.mu.Lock()
	cancel := cv.cancel
	cv.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send runs one turn and returns the final assistant message. On
// cancellation the returned error is the context's and the message holds
// the partial text. A transport failure before any text arrived is recorded
// as the message content so the transcript shows what happened.
func (cv *Conversation) Send(ctx context.Context, text string) (Message, error) {
	cv.mu.Lock()
	if cv.busy {
		cv.mu.Unlock()
		return Message{}, ErrBusy
	}
	cv.busy = true
	ctx, cancel := context.WithCancel(ctx)
	cv.cancel = cancel
	req := web.ChatRequest{ThreadID: cv.threadID, Message: text, Context: cv.context}
	cv.messages = append(cv.messages,
		Message{Role: store.RoleUser, Content: text},
		Message{Role: store.RoleAssistant},
	)
	idx := len(cv.messages) - 1
	cv.mu.Unlock()

	defer func() {
		cancel()
		cv.mu.Lock()
		cv.busy = false
		cv.cancel = nil
		cv.mu.Unlock()
	}()

	var acc stream.Accumulator
	sawDone := false
	err := cv.client.Stream(ctx, "/api/chat", req, func(evt stream.Event) {
		cv.mu.Lock()
		msg := &cv.messages[idx]
		switch evt.Type {
		case stream.FrameThread:
			if id := evt.StringField("threadId"); id != "" {
				cv.threadID = id
			}
		case stream.FrameScreenshot:
			var s Screenshot
			if evt.Field("url", &s.URL) {
				evt.Field("description", &s.Description)
				evt.Field("imageUrl", &s.ImageURL)
				evt.Field("width", &s.Width)
				evt.Field("height", &s.Height)
				msg.Screenshots = append(msg.Screenshots, s)
			}
		case stream.FrameDone:
			sawDone = true
			evt.Field("exitCode", &msg.ExitCode)
			if id := evt.StringField("threadId"); id != "" {
				cv.threadID = id
			}
		}
		if evt.Kind == stream.KindError && evt.Text != "" {
			msg.Errors = append(msg.Errors, evt.Text)
		}
		acc.Add(evt)
		msg.Content = acc.Text()
		cv.mu.Unlock()

		if cv.OnEvent != nil {
			cv.OnEvent(evt)
		}
	})

	cv.mu.Lock()
	defer cv.mu.Unlock()
	msg := &cv.messages[idx]
	if err == nil && !sawDone {
		msg.Partial = true
	}
	if err != nil {
		msg.Partial = true
		if ctx.Err() == nil && msg.Content == "" {
			msg.Content = "Error: " + err.Error()
		}
	}
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return *msg, err
}
