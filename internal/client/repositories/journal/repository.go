// Package journal is the append-only change journal: every local-origin
// mutation lands here and stays until the uploader acknowledges it against
// the server. Sequence order within one local id is never reordered.
package journal

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

type Repository interface {
	// Append stores the mutation and returns its assigned sequence number.
	Append(ctx context.Context, m *models.Mutation) (int64, error)

	// PeekBatch returns up to max pending mutations in sequence order,
	// including entries still inside their backoff window; the uploader
	// skips those and everything queued behind them for the same id.
	PeekBatch(ctx context.Context, max int) ([]models.Mutation, error)

	// Ack removes an applied mutation.
	Ack(ctx context.Context, seq int64) error

	// Requeue schedules a retry: bumps the retry count and sets the earliest
	// next attempt time.
	Requeue(ctx context.Context, seq int64, notBefore int64, retryCount int) error

	// Supersede marks the mutation as explicitly overriding the given remote
	// timestamp after a locally-won conflict.
	Supersede(ctx context.Context, seq int64, marker int64) error

	// MarkFailed parks the mutation permanently; it is kept for inspection
	// but never retried.
	MarkFailed(ctx context.Context, seq int64) error

	// DropPending removes all pending mutations for one entity after a
	// remote-wins resolution.
	DropPending(ctx context.Context, t model.EntityType, localID string) error

	// FirstPending returns the oldest pending mutation for one entity, or
	// common.ErrorNotFound when none is queued.
	FirstPending(ctx context.Context, t model.EntityType, localID string) (*models.Mutation, error)

	// PendingForID counts pending mutations queued for one entity.
	PendingForID(ctx context.Context, t model.EntityType, localID string) (int, error)

	// Counts returns the number of pending and failed mutations.
	Counts(ctx context.Context) (pending int, failed int, err error)
}
