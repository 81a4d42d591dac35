// Package store is the local durable store: one SQLite table per entity
// kind, each row carrying the JSON payload, tombstone and dirty flags, and
// the last acknowledged remote timestamp.
package store

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Repository persists local entity rows. It is plain persistence: stamping,
// journal appends and invariant checks belong to the service layer above it.
type Repository interface {
	// Put inserts the row or overwrites it completely by local id.
	Put(ctx context.Context, row *models.Row) error

	// Get returns the row by local id, tombstoned or not.
	// Returns common.ErrorNotFound when the id is unknown.
	Get(ctx context.Context, t model.EntityType, localID string) (*models.Row, error)

	// List returns non-tombstoned rows of the given type. A non-empty
	// projectID restricts the listing to that project's rows.
	List(ctx context.Context, t model.EntityType, projectID string) ([]models.Row, error)

	// ListDirty returns rows with unsynchronized local changes, tombstones
	// included.
	ListDirty(ctx context.Context, t model.EntityType) ([]models.Row, error)

	// SetRemoteID stamps the server-assigned id and remote timestamp after a
	// create is acknowledged.
	SetRemoteID(ctx context.Context, t model.EntityType, localID, remoteID string, remoteUpdatedAt int64) error

	// MarkClean clears the dirty flag and records the acknowledged remote
	// timestamp.
	MarkClean(ctx context.Context, t model.EntityType, localID string, remoteUpdatedAt int64) error

	// Tombstone soft-deletes the row and marks it dirty.
	Tombstone(ctx context.Context, t model.EntityType, localID string, updatedAt int64) error

	// Purge physically removes the row once its remote delete is
	// acknowledged (or when it never reached the server).
	Purge(ctx context.Context, t model.EntityType, localID string) error
}
