package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE journal (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  local_id TEXT NOT NULL,
  op TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '',
  supersedes INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  not_before INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending'
);
`)
	require.NoError(t, err)

	return db
}

func mutation(localID string, op models.Op) *models.Mutation {
	return &models.Mutation{
		EntityType: model.EntityElement,
		LocalID:    localID,
		Op:         op,
		Payload:    json.RawMessage(`{"name":"Varga"}`),
	}
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	s1, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	s2, err := r.Append(ctx, mutation("e1", models.OpUpdate))
	require.NoError(t, err)

	assert.Greater(t, s2, s1)
}

func TestPeekBatchPreservesOrder(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	_, err = r.Append(ctx, mutation("e2", models.OpCreate))
	require.NoError(t, err)
	_, err = r.Append(ctx, mutation("e1", models.OpUpdate))
	require.NoError(t, err)

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, models.OpCreate, batch[0].Op)
	assert.Equal(t, "e1", batch[0].LocalID)
	assert.Equal(t, "e2", batch[1].LocalID)
	assert.Equal(t, models.OpUpdate, batch[2].Op)
}

func TestPeekBatchIncludesBackedOffEntries(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	seq, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	require.NoError(t, r.Requeue(ctx, seq, 9_999_999_999_999, 3))

	// backed-off entries stay visible so the uploader can hold back later
	// mutations of the same id
	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(9_999_999_999_999), batch[0].NotBefore)
	assert.Equal(t, 3, batch[0].RetryCount)
}

func TestAckRemoves(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	seq, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	require.NoError(t, r.Ack(ctx, seq))

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	assert.ErrorIs(t, r.Ack(ctx, seq), common.ErrorNotFound)
}

func TestSupersedeClearsBackoff(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	seq, err := r.Append(ctx, mutation("e1", models.OpUpdate))
	require.NoError(t, err)
	require.NoError(t, r.Requeue(ctx, seq, 9_999_999_999_999, 1))
	require.NoError(t, r.Supersede(ctx, seq, 4200))

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(4200), batch[0].Supersedes)
	assert.Zero(t, batch[0].NotBefore)
}

func TestMarkFailedHidesFromBatch(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	seq, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, seq))

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	pending, failed, err := r.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, failed)
}

func TestFirstPendingAndCount(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.FirstPending(ctx, model.EntityElement, "e1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	s1, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	_, err = r.Append(ctx, mutation("e1", models.OpUpdate))
	require.NoError(t, err)

	first, err := r.FirstPending(ctx, model.EntityElement, "e1")
	require.NoError(t, err)
	assert.Equal(t, s1, first.Seq)
	assert.Equal(t, models.OpCreate, first.Op)

	n, err := r.PendingForID(ctx, model.EntityElement, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDropPendingKeepsOtherIDs(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.Append(ctx, mutation("e1", models.OpCreate))
	require.NoError(t, err)
	_, err = r.Append(ctx, mutation("e1", models.OpUpdate))
	require.NoError(t, err)
	_, err = r.Append(ctx, mutation("e2", models.OpCreate))
	require.NoError(t, err)

	require.NoError(t, r.DropPending(ctx, model.EntityElement, "e1"))

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "e2", batch[0].LocalID)
}
