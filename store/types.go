// ABOUTME: Row types persisted by the store: conversation threads, their messages, and builds.
// ABOUTME: JSON tags match the shapes returned by the HTTP API.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a thread or build id has no row.
var ErrNotFound = errors.New("store: not found")

// Role identifies who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a thread's ordered transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is a conversation scoped to one canvas page.
type Thread struct {
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	ShapeIDs  []string  `json:"shapeIds"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BuildStatus tracks a build through plan and execute.
type BuildStatus string

const (
	BuildPlanning  BuildStatus = "planning"
	BuildPending   BuildStatus = "pending"
	BuildBuilding  BuildStatus = "building"
	BuildCompleted BuildStatus = "completed"
	BuildError     BuildStatus = "error"
)

// Build is one plan/execute cycle for a page.
type Build struct {
	ID             string      `json:"id"`
	PageID         string      `json:"pageId"`
	Status         BuildStatus `json:"status"`
	Plan           string      `json:"plan,omitempty"`
	SelectedShapes []string    `json:"selectedShapes"`
	Result         string      `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

// BuildUpdate lists the columns to change on a build. Nil fields are left alone.
type BuildUpdate struct {
	Status   BuildStatus
	Plan     *string
	Result   *string
	Error    *string
	Complete bool // stamp completed_at with the current time
}
