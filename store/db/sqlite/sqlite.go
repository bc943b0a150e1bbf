package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

// ============================================================================
// SQLITE SUPPORT POLICY
// ============================================================================
// SQLite is supported on a BEST-EFFORT basis for development and testing only.
//
// Supported:
// - Full CRUD, queue, and worker operation
// - Vector recall with application-layer cosine scoring (no ANN index)
//
// NOT supported:
// - Concurrent writer processes (SQLite limitation)
// - Large fact sets: the vector stage scans every embedded fact of a user
//
// Production deployments should use PostgreSQL with pgvector.
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode avoids writer lock stalls; busy_timeout covers the
	// remaining contention between the HTTP handlers and the job workers.
	// With the `modernc.org/sqlite` driver each pragma must be prefixed
	// with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Timestamps are stored as unix nanoseconds to keep scanning portable
// across sqlite drivers.

func toTs(t time.Time) int64 {
	return t.UnixNano()
}

func fromTs(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullTs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNullTs(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromTs(n.Int64)
	return &t
}
