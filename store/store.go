package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

// GetUser returns a single user matching find, or nil when absent.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	list, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	if len(list) > 1 {
		return nil, errors.Errorf("expected 1 user, got %d", len(list))
	}
	return list[0], nil
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	return s.driver.UpdateUser(ctx, update)
}

func (s *Store) ListActiveUserIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.driver.ListActiveUserIDs(ctx, cutoff)
}

func (s *Store) ListUserIDsWithFacts(ctx context.Context) ([]string, error) {
	return s.driver.ListUserIDsWithFacts(ctx)
}

func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	return s.driver.CreateSession(ctx, create)
}

// GetSession returns a single session matching find, or nil when absent.
func (s *Store) GetSession(ctx context.Context, find *FindSession) (*Session, error) {
	list, err := s.driver.ListSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CreateChatLog(ctx context.Context, create *ChatLog) (*ChatLog, error) {
	return s.driver.CreateChatLog(ctx, create)
}

func (s *Store) ListChatLogs(ctx context.Context, find *FindChatLog) ([]*ChatLog, error) {
	return s.driver.ListChatLogs(ctx, find)
}

// GetChatLog returns a single chat message by ID, or nil when absent.
func (s *Store) GetChatLog(ctx context.Context, id string) (*ChatLog, error) {
	list, err := s.driver.ListChatLogs(ctx, &FindChatLog{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CreateFact(ctx context.Context, create *Fact) (*Fact, error) {
	return s.driver.CreateFact(ctx, create)
}

func (s *Store) ListFacts(ctx context.Context, find *FindFact) ([]*Fact, error) {
	return s.driver.ListFacts(ctx, find)
}

// GetFact returns a single fact by ID, or nil when absent.
func (s *Store) GetFact(ctx context.Context, id string) (*Fact, error) {
	list, err := s.driver.ListFacts(ctx, &FindFact{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateFact(ctx context.Context, update *UpdateFact) error {
	return s.driver.UpdateFact(ctx, update)
}

func (s *Store) VectorSearchFacts(ctx context.Context, search *FactVectorSearch) ([]*FactWithDistance, error) {
	return s.driver.VectorSearchFacts(ctx, search)
}

func (s *Store) CommitExtraction(ctx context.Context, commit *ExtractionCommit) error {
	return s.driver.CommitExtraction(ctx, commit)
}

func (s *Store) CommitConsolidation(ctx context.Context, commit *ConsolidationCommit) error {
	return s.driver.CommitConsolidation(ctx, commit)
}

func (s *Store) DecayFacts(ctx context.Context, staleBefore time.Time, factor, floor float64) (int64, error) {
	return s.driver.DecayFacts(ctx, staleBefore, factor, floor)
}

func (s *Store) EnqueueJob(ctx context.Context, create *Job) (*Job, error) {
	return s.driver.EnqueueJob(ctx, create)
}

func (s *Store) ClaimJob(ctx context.Context, now time.Time) (*Job, error) {
	return s.driver.ClaimJob(ctx, now)
}

func (s *Store) CompleteJob(ctx context.Context, id string, status JobStatus) error {
	return s.driver.CompleteJob(ctx, id, status)
}

func (s *Store) RescheduleJob(ctx context.Context, id string, runAt time.Time) error {
	return s.driver.RescheduleJob(ctx, id, runAt)
}

func (s *Store) CountPendingJobs(ctx context.Context) (int, error) {
	return s.driver.CountPendingJobs(ctx)
}
