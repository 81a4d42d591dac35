package journal

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, m *models.Mutation) (int64, error) {
	query := `
		INSERT INTO journal (entity_type, local_id, op, payload, supersedes, retry_count, not_before, status)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)
	`

	res, err := r.db.ExecContext(ctx, query,
		string(m.EntityType), m.LocalID, string(m.Op), string(m.Payload), m.Supersedes, models.MutationPending)
	if err != nil {
		return 0, fmt.Errorf("failed to append mutation: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read mutation seq: %w", err)
	}
	m.Seq = seq
	return seq, nil
}

func (r *SQLiteRepository) PeekBatch(ctx context.Context, max int) ([]models.Mutation, error) {
	query := `
		SELECT seq, entity_type, local_id, op, payload, supersedes, retry_count, not_before, status
		FROM journal WHERE status = ? ORDER BY seq LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, models.MutationPending, max)
	if err != nil {
		return nil, fmt.Errorf("failed to select mutations: %w", err)
	}
	defer rows.Close()

	var result []models.Mutation
	for rows.Next() {
		var m models.Mutation
		var entityType, op, payload string
		if err := rows.Scan(&m.Seq, &entityType, &m.LocalID, &op, &payload,
			&m.Supersedes, &m.RetryCount, &m.NotBefore, &m.Status); err != nil {
			return nil, err
		}
		m.EntityType = model.EntityType(entityType)
		m.Op = models.Op(op)
		m.Payload = []byte(payload)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Ack(ctx context.Context, seq int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM journal WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to ack mutation: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) Requeue(ctx context.Context, seq int64, notBefore int64, retryCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE journal SET not_before = ?, retry_count = ? WHERE seq = ?`, notBefore, retryCount, seq)
	if err != nil {
		return fmt.Errorf("failed to requeue mutation: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) Supersede(ctx context.Context, seq int64, marker int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE journal SET supersedes = ?, not_before = 0 WHERE seq = ?`, marker, seq)
	if err != nil {
		return fmt.Errorf("failed to mark mutation superseding: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, seq int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE journal SET status = ? WHERE seq = ?`, models.MutationFailed, seq)
	if err != nil {
		return fmt.Errorf("failed to mark mutation failed: %w", err)
	}
	return checkOneRow(res)
}

func (r *SQLiteRepository) DropPending(ctx context.Context, t model.EntityType, localID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM journal WHERE status = ? AND entity_type = ? AND local_id = ?`,
		models.MutationPending, string(t), localID)
	if err != nil {
		return fmt.Errorf("failed to drop pending mutations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FirstPending(ctx context.Context, t model.EntityType, localID string) (*models.Mutation, error) {
	query := `
		SELECT seq, entity_type, local_id, op, payload, supersedes, retry_count, not_before, status
		FROM journal WHERE status = ? AND entity_type = ? AND local_id = ?
		ORDER BY seq LIMIT 1
	`

	var m models.Mutation
	var entityType, op, payload string
	err := r.db.QueryRowContext(ctx, query, models.MutationPending, string(t), localID).Scan(
		&m.Seq, &entityType, &m.LocalID, &op, &payload,
		&m.Supersedes, &m.RetryCount, &m.NotBefore, &m.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select first pending mutation: %w", err)
	}
	m.EntityType = model.EntityType(entityType)
	m.Op = models.Op(op)
	m.Payload = []byte(payload)
	return &m, nil
}

func (r *SQLiteRepository) PendingForID(ctx context.Context, t model.EntityType, localID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal WHERE status = ? AND entity_type = ? AND local_id = ?`,
		models.MutationPending, string(t), localID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Counts(ctx context.Context) (int, int, error) {
	var pending, failed int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END)
		FROM journal
	`, models.MutationPending, models.MutationFailed).Scan(&pending, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return pending, failed, nil
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
