package entities

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
)

// Repository is the server-side store for synchronized entities. One
// implementation serves all four entity tables; every method takes the
// entity type and routes to the corresponding table.
type Repository interface {
	// Insert creates a row and returns it. When a row with the same
	// (owner_id, client_id) already exists, the existing row is returned
	// unchanged so create retries are idempotent.
	Insert(ctx context.Context, t model.EntityType, e *models.Entity) (*models.Entity, error)

	// Get returns the row with the given id owned by ownerID, or
	// common.ErrorNotFound. Tombstoned rows are returned too.
	Get(ctx context.Context, t model.EntityType, ownerID, id string) (*models.Entity, error)

	// Update overwrites payload and updated_at.
	Update(ctx context.Context, t model.EntityType, ownerID, id string, payload []byte, updatedAt int64) error

	// SoftDelete sets deleted_at and updated_at.
	SoftDelete(ctx context.Context, t model.EntityType, ownerID, id string, deletedAt int64) error

	// SelectUpdated returns rows with updated_at strictly greater than since,
	// tombstones included, ordered by updated_at ascending. projectID, when
	// non-empty, restricts the result to one project. limit bounds the page.
	SelectUpdated(ctx context.Context, t model.EntityType, ownerID string, since int64, projectID string, limit int) ([]*models.Entity, error)
}
