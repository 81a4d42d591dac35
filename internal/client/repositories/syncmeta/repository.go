// Package syncmeta tracks per-scope synchronization state: the pull
// checkpoint plus the status the CLI surfaces to the user.
package syncmeta

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

type Repository interface {
	// Get returns the scope state, or a fresh idle state with a zero
	// checkpoint for a scope never synced before.
	Get(ctx context.Context, scope string) (*models.ScopeState, error)

	// AdvanceCheckpoint raises the scope checkpoint to the given value.
	// Lower values are ignored: checkpoints never regress.
	AdvanceCheckpoint(ctx context.Context, scope string, checkpoint int64) error

	// TypeCheckpoint returns the pull position of one entity type within a
	// scope, zero for a type never pulled.
	TypeCheckpoint(ctx context.Context, scope string, t model.EntityType) (int64, error)

	// AdvanceTypeCheckpoint raises a per-type pull position, same
	// never-regress rule as AdvanceCheckpoint.
	AdvanceTypeCheckpoint(ctx context.Context, scope string, t model.EntityType, checkpoint int64) error

	// SetStatus records the outcome of a sync cycle.
	SetStatus(ctx context.Context, scope string, status models.SyncStatus, lastError string, lastSyncedAt int64) error

	// List returns every known scope state.
	List(ctx context.Context) ([]models.ScopeState, error)

	// Delete forgets a scope, e.g. after its project is purged.
	Delete(ctx context.Context, scope string) error
}
