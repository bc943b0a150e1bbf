package store

import "time"

// Session represents a single conversation between a user and an agent.
// Sessions are immutable after creation.
type Session struct {
	ID        string
	UserID    string
	CreatedTs time.Time
}

// FindSession specifies the conditions for finding sessions.
type FindSession struct {
	ID     *string
	UserID *string
}
