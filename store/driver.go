package store

import (
	"context"
	"database/sql"
	"time"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)
	ListActiveUserIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	ListUserIDsWithFacts(ctx context.Context) ([]string, error)

	// Session model related methods.
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)

	// ChatLog model related methods.
	CreateChatLog(ctx context.Context, create *ChatLog) (*ChatLog, error)
	ListChatLogs(ctx context.Context, find *FindChatLog) ([]*ChatLog, error)

	// Fact model related methods.
	CreateFact(ctx context.Context, create *Fact) (*Fact, error)
	ListFacts(ctx context.Context, find *FindFact) ([]*Fact, error)
	UpdateFact(ctx context.Context, update *UpdateFact) error
	VectorSearchFacts(ctx context.Context, search *FactVectorSearch) ([]*FactWithDistance, error)
	CommitExtraction(ctx context.Context, commit *ExtractionCommit) error
	CommitConsolidation(ctx context.Context, commit *ConsolidationCommit) error
	DecayFacts(ctx context.Context, staleBefore time.Time, factor, floor float64) (int64, error)

	// Job queue related methods.
	EnqueueJob(ctx context.Context, create *Job) (*Job, error)
	ClaimJob(ctx context.Context, now time.Time) (*Job, error)
	CompleteJob(ctx context.Context, id string, status JobStatus) error
	RescheduleJob(ctx context.Context, id string, runAt time.Time) error
	CountPendingJobs(ctx context.Context) (int, error)
}
