package store

import "time"

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatLog represents one immutable chat message inside a session.
type ChatLog struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedTs time.Time
}

// FindChatLog specifies the conditions for finding chat messages.
// Results are ordered chronologically; with Descending set, the driver
// returns the newest messages first (callers reverse for transcripts).
type FindChatLog struct {
	ID         *string
	SessionID  *string
	Descending bool
	Limit      int
}
