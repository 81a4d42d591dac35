package syncmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, scope string) (*models.ScopeState, error) {
	var s models.ScopeState
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT scope, checkpoint, status, last_error, last_synced_at
		FROM sync_metadata WHERE scope = ?
	`, scope).Scan(&s.Scope, &s.Checkpoint, &status, &s.LastError, &s.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ScopeState{Scope: scope, Status: models.SyncIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scope state: %w", err)
	}
	s.Status = models.SyncStatus(status)
	return &s, nil
}

func (r *SQLiteRepository) AdvanceCheckpoint(ctx context.Context, scope string, checkpoint int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (scope, checkpoint) VALUES (?, ?)
		ON CONFLICT(scope) DO UPDATE SET checkpoint = MAX(checkpoint, excluded.checkpoint)
	`, scope, checkpoint)
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TypeCheckpoint(ctx context.Context, scope string, t model.EntityType) (int64, error) {
	var checkpoint int64
	err := r.db.QueryRowContext(ctx, `
		SELECT checkpoint FROM sync_checkpoints WHERE scope = ? AND entity_type = ?
	`, scope, string(t)).Scan(&checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get type checkpoint: %w", err)
	}
	return checkpoint, nil
}

func (r *SQLiteRepository) AdvanceTypeCheckpoint(ctx context.Context, scope string, t model.EntityType, checkpoint int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (scope, entity_type, checkpoint) VALUES (?, ?, ?)
		ON CONFLICT(scope, entity_type) DO UPDATE SET checkpoint = MAX(checkpoint, excluded.checkpoint)
	`, scope, string(t), checkpoint)
	if err != nil {
		return fmt.Errorf("failed to advance type checkpoint: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, scope string, status models.SyncStatus, lastError string, lastSyncedAt int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (scope, status, last_error, last_synced_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			last_synced_at = excluded.last_synced_at
	`, scope, string(status), lastError, lastSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to set scope status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.ScopeState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scope, checkpoint, status, last_error, last_synced_at
		FROM sync_metadata ORDER BY scope
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scope states: %w", err)
	}
	defer rows.Close()

	var result []models.ScopeState
	for rows.Next() {
		var s models.ScopeState
		var status string
		if err := rows.Scan(&s.Scope, &s.Checkpoint, &status, &s.LastError, &s.LastSyncedAt); err != nil {
			return nil, err
		}
		s.Status = models.SyncStatus(status)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, scope string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_metadata WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to delete scope state: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_checkpoints WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to delete scope checkpoints: %w", err)
	}
	return nil
}
