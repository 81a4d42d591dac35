// Package models defines server-side persistence models.
package models

// User is an account row. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
}

// RefreshToken is an opaque rotating token bound to a user.
type RefreshToken struct {
	Token   string
	UserID  string
	Expires int64 // unix milliseconds
}

// Entity is one row of a synchronized entity table. The canonical copy of
// every entity lives here once a device has uploaded it; ClientID preserves
// the uploading device's local id so create retries are idempotent via the
// (owner_id, client_id) uniqueness constraint.
//
// Timestamps are unix milliseconds, server-assigned on every write. DeletedAt
// is the soft-delete marker; tombstoned rows are retained so deletions
// propagate to other devices during pull.
type Entity struct {
	ID        string
	OwnerID   string
	ClientID  string
	ProjectID string // empty for projects and global templates
	Payload   []byte
	CreatedAt int64
	UpdatedAt int64
	DeletedAt *int64
}

// Tombstoned reports whether the entity is soft-deleted.
func (e *Entity) Tombstoned() bool { return e.DeletedAt != nil }
