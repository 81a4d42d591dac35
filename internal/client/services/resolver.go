package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/logging"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Outcome is the terminal result of a conflict resolution.
type Outcome int

const (
	RemoteWins Outcome = iota
	LocalWins
)

// Resolver applies whole-entity last-write-wins between a dirty local row
// and a newer remote one. There is no field-level merge: either the remote
// row overwrites the local state, or the local state is pushed carrying a
// marker that supersedes the exact remote version it lost to.
type Resolver struct {
	repos  *client.Repositories
	logger logging.Logger
}

func NewResolver(repos *client.Repositories, logger logging.Logger) *Resolver {
	return &Resolver{repos: repos, logger: logger.With("module", "resolver")}
}

// Resolve decides between the dirty local row and the conflicting remote row
// and applies the side effects. A remote timestamp greater than or equal to
// the local one wins; the tie toward remote keeps every device deterministic.
func (r *Resolver) Resolve(ctx context.Context, local *models.Row, remote api.Row) (Outcome, error) {
	if remote.UpdatedAt >= local.UpdatedAt {
		if err := r.applyRemote(ctx, local, remote); err != nil {
			return RemoteWins, err
		}
		return RemoteWins, nil
	}

	// Local wins: the oldest queued mutation for this entity is re-pushed
	// with a supersedes marker the server verifies against its stored
	// timestamp.
	first, err := r.repos.Journal.FirstPending(ctx, local.EntityType, local.LocalID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// dirty row without a queued mutation should not happen; journal
			// the current state so the local version still gets pushed
			op := models.OpUpdate
			var payload []byte
			if local.Deleted {
				op = models.OpDelete
			} else {
				payload = local.Payload
			}
			seq, appendErr := r.repos.Journal.Append(ctx, &models.Mutation{
				EntityType: local.EntityType,
				LocalID:    local.LocalID,
				Op:         op,
				Payload:    payload,
				Supersedes: remote.UpdatedAt,
			})
			if appendErr != nil {
				return LocalWins, appendErr
			}
			r.logger.Debug(ctx, "Re-journaled dirty row after conflict", "type", local.EntityType, "local_id", local.LocalID, "seq", seq)
			return LocalWins, nil
		}
		return LocalWins, err
	}

	if err := r.repos.Journal.Supersede(ctx, first.Seq, remote.UpdatedAt); err != nil {
		return LocalWins, err
	}
	return LocalWins, nil
}

// applyRemote overwrites the local row with the remote version, clears the
// dirty flag and drops every pending mutation for the entity.
func (r *Resolver) applyRemote(ctx context.Context, local *models.Row, remote api.Row) error {
	if err := r.repos.Journal.DropPending(ctx, local.EntityType, local.LocalID); err != nil {
		return err
	}

	if remote.Tombstoned() {
		// the delete already won; the local copy and its edits go
		if err := r.repos.Store.Purge(ctx, local.EntityType, local.LocalID); err != nil {
			return err
		}
		if local.EntityType == model.EntityProject {
			return r.repos.SyncMeta.Delete(ctx, local.LocalID)
		}
		return nil
	}

	payload, err := r.localizePayload(ctx, local.EntityType, remote.Payload)
	if err != nil {
		return err
	}

	row := *local
	row.Payload = payload
	row.RemoteID = remote.ID
	row.UpdatedAt = remote.UpdatedAt
	row.RemoteUpdatedAt = remote.UpdatedAt
	row.Deleted = false
	row.Dirty = false
	return r.repos.Store.Put(ctx, &row)
}

// localizePayload rewrites remote reference ids inside a payload back to
// their local counterparts.
func (r *Resolver) localizePayload(ctx context.Context, t model.EntityType, raw []byte) ([]byte, error) {
	payload, err := model.DecodePayload(t, raw)
	if err != nil {
		return nil, err
	}

	err = payload.Rewrite(func(refType model.EntityType, remoteID string) (string, bool) {
		localID, err := r.repos.IDMap.ResolveLocal(ctx, refType, remoteID)
		if err != nil {
			return "", false
		}
		return localID, true
	})
	if err != nil {
		return nil, fmt.Errorf("localizing %s payload: %w", t, err)
	}

	return marshalPayload(payload)
}
