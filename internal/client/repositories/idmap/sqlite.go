package idmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *SQLiteRepository) RecordMapping(ctx context.Context, t model.EntityType, localID, remoteID string) error {
	existing, err := r.ResolveRemote(ctx, t, localID)
	if err == nil {
		if existing == remoteID {
			return nil
		}
		return fmt.Errorf("%s %s already mapped to %s: %w", t, localID, existing, common.ErrIdentifierRemap)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	// the reverse direction must be unique too
	if local, err := r.ResolveLocal(ctx, t, remoteID); err == nil {
		return fmt.Errorf("remote %s %s already mapped to %s: %w", t, remoteID, local, common.ErrIdentifierRemap)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO id_map (entity_type, local_id, remote_id) VALUES (?, ?, ?)`,
		string(t), localID, remoteID)
	if err != nil {
		return fmt.Errorf("failed to record mapping: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResolveRemote(ctx context.Context, t model.EntityType, localID string) (string, error) {
	var remoteID string
	err := r.db.QueryRowContext(ctx,
		`SELECT remote_id FROM id_map WHERE entity_type = ? AND local_id = ?`,
		string(t), localID).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve remote id: %w", err)
	}
	return remoteID, nil
}

func (r *SQLiteRepository) ResolveLocal(ctx context.Context, t model.EntityType, remoteID string) (string, error) {
	var localID string
	err := r.db.QueryRowContext(ctx,
		`SELECT local_id FROM id_map WHERE entity_type = ? AND remote_id = ?`,
		string(t), remoteID).Scan(&localID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve local id: %w", err)
	}
	return localID, nil
}
