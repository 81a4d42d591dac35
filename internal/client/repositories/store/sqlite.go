package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

var tables = map[model.EntityType]string{
	model.EntityProject:      "projects",
	model.EntityElement:      "elements",
	model.EntityRelationship: "relationships",
	model.EntityTemplate:     "templates",
}

// tableFor maps an entity type to its table name. Only whitelisted names are
// ever interpolated into SQL.
func tableFor(t model.EntityType) (string, error) {
	name, ok := tables[t]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", t)
	}
	return name, nil
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, row *models.Row) error {
	table, err := tableFor(row.EntityType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (local_id, remote_id, project_id, payload, updated_at, remote_updated_at, deleted, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			project_id = excluded.project_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			remote_updated_at = excluded.remote_updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty
	`, table)

	_, err = r.db.ExecContext(ctx, query,
		row.LocalID, nullable(row.RemoteID), row.ProjectID, string(row.Payload),
		row.UpdatedAt, row.RemoteUpdatedAt, boolInt(row.Deleted), boolInt(row.Dirty))
	if err != nil {
		return fmt.Errorf("failed to upsert %s row: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, t model.EntityType, localID string) (*models.Row, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT local_id, COALESCE(remote_id, ''), project_id, payload, updated_at, remote_updated_at, deleted, dirty
		FROM %s WHERE local_id = ?
	`, table)

	return scanRow(t, r.db.QueryRowContext(ctx, query, localID))
}

func (r *SQLiteRepository) List(ctx context.Context, t model.EntityType, projectID string) ([]models.Row, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT local_id, COALESCE(remote_id, ''), project_id, payload, updated_at, remote_updated_at, deleted, dirty
		FROM %s WHERE deleted = 0 AND (? = '' OR project_id = ?)
		ORDER BY updated_at
	`, table)

	return r.queryRows(ctx, t, query, projectID, projectID)
}

func (r *SQLiteRepository) ListDirty(ctx context.Context, t model.EntityType) ([]models.Row, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT local_id, COALESCE(remote_id, ''), project_id, payload, updated_at, remote_updated_at, deleted, dirty
		FROM %s WHERE dirty = 1
	`, table)

	return r.queryRows(ctx, t, query)
}

func (r *SQLiteRepository) SetRemoteID(ctx context.Context, t model.EntityType, localID, remoteID string, remoteUpdatedAt int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET remote_id = ?, remote_updated_at = ? WHERE local_id = ?`, table)

	res, err := r.db.ExecContext(ctx, query, remoteID, remoteUpdatedAt, localID)
	if err != nil {
		return fmt.Errorf("failed to set remote id: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) MarkClean(ctx context.Context, t model.EntityType, localID string, remoteUpdatedAt int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET dirty = 0, remote_updated_at = ? WHERE local_id = ?`, table)

	res, err := r.db.ExecContext(ctx, query, remoteUpdatedAt, localID)
	if err != nil {
		return fmt.Errorf("failed to mark row clean: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) Tombstone(ctx context.Context, t model.EntityType, localID string, updatedAt int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET deleted = 1, dirty = 1, updated_at = ? WHERE local_id = ? AND deleted = 0`, table)

	res, err := r.db.ExecContext(ctx, query, updatedAt, localID)
	if err != nil {
		return fmt.Errorf("failed to tombstone row: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) Purge(ctx context.Context, t model.EntityType, localID string) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE local_id = ?`, table)

	if _, err := r.db.ExecContext(ctx, query, localID); err != nil {
		return fmt.Errorf("failed to purge row: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryRows(ctx context.Context, t model.EntityType, query string, args ...any) ([]models.Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select rows: %w", err)
	}
	defer rows.Close()

	var result []models.Row
	for rows.Next() {
		var row models.Row
		var payload string
		var deleted, dirty int
		if err := rows.Scan(&row.LocalID, &row.RemoteID, &row.ProjectID, &payload,
			&row.UpdatedAt, &row.RemoteUpdatedAt, &deleted, &dirty); err != nil {
			return nil, err
		}
		row.EntityType = t
		row.Payload = []byte(payload)
		row.Deleted = deleted != 0
		row.Dirty = dirty != 0
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRow(t model.EntityType, row *sql.Row) (*models.Row, error) {
	var result models.Row
	var payload string
	var deleted, dirty int
	err := row.Scan(&result.LocalID, &result.RemoteID, &result.ProjectID, &payload,
		&result.UpdatedAt, &result.RemoteUpdatedAt, &deleted, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}
	result.EntityType = t
	result.Payload = []byte(payload)
	result.Deleted = deleted != 0
	result.Dirty = dirty != 0
	return &result, nil
}

func checkOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
