// ABOUTME: Tool allow-lists handed to the agent for each kind of turn.

package agent

// ReadOnlyTools lets the agent explore the repository without changing it.
// Used for chat and for build planning.
var ReadOnlyTools = []string{"Read", "Glob", "Grep"}

// ReadWriteTools is used when executing an approved build plan.
var ReadWriteTools = []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"}
