// ABOUTME: Persister commits one completed turn (user message plus assistant reply) to a thread.
// ABOUTME: Creates the thread on first commit; an empty assistant reply is never stored.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ThreadStore is the subset of the row store the persister needs.
type ThreadStore interface {
	CreateThread(ctx context.Context, t Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	AppendMessages(ctx context.Context, threadID string, msgs ...Message) error
}

// Turn is what one agent invocation contributes to a thread.
type Turn struct {
	ThreadID  string
	PageID    string
	ShapeIDs  []string
	User      string
	Assistant string
}

// Persister appends turns to threads.
type Persister struct {
	Store ThreadStore
	Now   func() time.Time
}

// NewPersister returns a Persister writing to s.
func NewPersister(s ThreadStore) *Persister {
	return &Persister{Store: s, Now: time.Now}
}

// NewThreadID returns a fresh opaque thread id.
func NewThreadID() string {
	return uuid.New().String()
}

// Commit stores the turn and returns the thread id. When turn.ThreadID is
// empty, or names a thread that was never stored, a thread is created.
func (p *Persister) Commit(ctx context.Context, turn Turn) (string, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	msgs := []Message{{Role: RoleUser, Content: turn.User, Timestamp: now}}
	if turn.Assistant != "" {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: turn.Assistant, Timestamp: now})
	}

	id := turn.ThreadID
	if id != "" {
		_, err := p.Store.GetThread(ctx, id)
		switch {
		case err == nil:
			if err := p.Store.AppendMessages(ctx, id, msgs...); err != nil {
				return id, fmt.Errorf("append to thread %s: %w", id, err)
			}
			return id, nil
		case !errors.Is(err, ErrNotFound):
			return id, fmt.Errorf("load thread %s: %w", id, err)
		}
	} else {
		id = NewThreadID()
	}

	err := p.Store.CreateThread(ctx, Thread{
		ID:        id,
		PageID:    turn.PageID,
		ShapeIDs:  turn.ShapeIDs,
		Messages:  msgs,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return id, fmt.Errorf("create thread %s: %w", id, err)
	}
	return id, nil
}
