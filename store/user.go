package store

import "time"

// User represents an end user of the memory engine. Users are created on
// signup and authenticate with an API key; only the SHA-256 hex digest of
// the key is stored.
type User struct {
	ID           string
	APIKeyHash   *string // nil after revocation
	CreatedTs    time.Time
	LastActiveTs time.Time
}

// FindUser specifies the conditions for finding users.
type FindUser struct {
	ID         *string
	APIKeyHash *string
}

// UpdateUser specifies the fields to update on a user.
// APIKeyHash is applied when SetAPIKeyHash is true; a nil value revokes the key.
type UpdateUser struct {
	ID            string
	SetAPIKeyHash bool
	APIKeyHash    *string
	LastActiveTs  *time.Time
}
