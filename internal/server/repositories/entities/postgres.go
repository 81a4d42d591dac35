// Package entities provides the PostgreSQL-backed repository shared by all
// synchronized entity tables. Projects, elements, relationships and templates
// carry identical sync columns; the repository routes by entity type to the
// right table and keeps the SQL in one place.
package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, t model.EntityType, e *models.Entity) (*models.Entity, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT DO NOTHING yields no row on a duplicate create; the
	// follow-up select returns the original row so the caller sees the same
	// id and timestamp on every retry.
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, client_id, project_id, payload, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)
		ON CONFLICT (owner_id, client_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, table)

	row := r.db.QueryRowContext(ctx, query, e.OwnerID, e.ClientID, e.ProjectID, e.Payload, e.CreatedAt)
	err = row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return r.getByClientID(ctx, table, e.OwnerID, e.ClientID)
}

func (r *PostgresRepository) getByClientID(ctx context.Context, table, ownerID, clientID string) (*models.Entity, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, client_id, COALESCE(project_id::text, ''), payload, created_at, updated_at, deleted_at
		FROM %s WHERE owner_id = $1 AND client_id = $2
	`, table)

	var e models.Entity
	err := r.db.QueryRowContext(ctx, query, ownerID, clientID).Scan(
		&e.ID, &e.OwnerID, &e.ClientID, &e.ProjectID, &e.Payload, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) Get(ctx context.Context, t model.EntityType, ownerID, id string) (*models.Entity, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, client_id, COALESCE(project_id::text, ''), payload, created_at, updated_at, deleted_at
		FROM %s WHERE owner_id = $1 AND id = $2
	`, table)

	var e models.Entity
	err = r.db.QueryRowContext(ctx, query, ownerID, id).Scan(
		&e.ID, &e.OwnerID, &e.ClientID, &e.ProjectID, &e.Payload, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t model.EntityType, ownerID, id string, payload []byte, updatedAt int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	// a winning update over a tombstone resurrects the row
	query := fmt.Sprintf(`UPDATE %s SET payload = $1, updated_at = $2, deleted_at = NULL WHERE owner_id = $3 AND id = $4`, table)

	res, err := r.db.ExecContext(ctx, query, payload, updatedAt, ownerID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return checkOneRow(res)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, t model.EntityType, ownerID, id string, deletedAt int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $1, updated_at = $1 WHERE owner_id = $2 AND id = $3`, table)

	res, err := r.db.ExecContext(ctx, query, deletedAt, ownerID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return checkOneRow(res)
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, t model.EntityType, ownerID string, since int64, projectID string, limit int) ([]*models.Entity, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, client_id, COALESCE(project_id::text, ''), payload, created_at, updated_at, deleted_at
		FROM %s
		WHERE owner_id = $1 AND updated_at > $2 AND ($3 = '' OR project_id = $3::uuid)
		ORDER BY updated_at ASC
		LIMIT $4
	`, table)

	rows, err := r.db.QueryContext(ctx, query, ownerID, since, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", table, err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.ClientID, &e.ProjectID, &e.Payload,
			&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
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
