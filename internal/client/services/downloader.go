package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/logging"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

const pullPageLimit = 500

// Downloader pulls remote changes scope by scope: the projects collection
// (with all templates) first, then each known project's elements and
// relationships in dependency order. Tombstones ride along with live rows.
//
// Like the uploader, it holds the store mutex only while touching local
// state, never across a pull request.
type Downloader struct {
	repos    *client.Repositories
	api      client.Client
	resolver *Resolver
	mu       *sync.Mutex
	logger   logging.Logger
	notify   func(t model.EntityType, localID string)
}

func NewDownloader(repos *client.Repositories, apiClient client.Client, resolver *Resolver, mu *sync.Mutex, logger logging.Logger, notify func(model.EntityType, string)) *Downloader {
	if notify == nil {
		notify = func(model.EntityType, string) {}
	}
	return &Downloader{
		repos:    repos,
		api:      apiClient,
		resolver: resolver,
		mu:       mu,
		logger:   logger.With("module", "downloader"),
		notify:   notify,
	}
}

func (d *Downloader) locked(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// RunCycle performs one full pull pass. Per-scope failures are recorded in
// sync metadata and do not abort the other scopes.
func (d *Downloader) RunCycle(ctx context.Context) error {
	var firstErr error

	// templates ride in the projects scope with an unfiltered pull: global
	// defaults have no project to scope them under, and project references
	// resolve because projects merge first
	if err := d.syncScope(ctx, models.ScopeProjects, "", []model.EntityType{model.EntityProject, model.EntityTemplate}); err != nil {
		firstErr = err
	}

	var projects []models.Row
	if err := d.locked(func() error {
		var err error
		projects, err = d.repos.Store.List(ctx, model.EntityProject, "")
		return err
	}); err != nil {
		return err
	}

	types := []model.EntityType{model.EntityElement, model.EntityRelationship}
	for _, p := range projects {
		var remoteID string
		err := d.locked(func() error {
			var err error
			remoteID, err = d.repos.IDMap.ResolveRemote(ctx, model.EntityProject, p.LocalID)
			return err
		})
		if err != nil {
			// project not uploaded yet; nothing remote to pull
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return err
		}
		if err := d.syncScope(ctx, p.LocalID, remoteID, types); err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return firstErr
}

// syncScope pulls every entity type of one scope from that type's own
// checkpoint and records the outcome. The scope-level checkpoint shown in
// status is the furthest position any type reached.
func (d *Downloader) syncScope(ctx context.Context, scope, remoteProjectID string, types []model.EntityType) error {
	var state *models.ScopeState
	err := d.locked(func() error {
		var err error
		state, err = d.repos.SyncMeta.Get(ctx, scope)
		if err != nil {
			return err
		}
		return d.repos.SyncMeta.SetStatus(ctx, scope, models.SyncSyncing, "", state.LastSyncedAt)
	})
	if err != nil {
		return err
	}

	caughtUp := state.Checkpoint
	var scopeErr error
	for _, t := range types {
		var since int64
		if err := d.locked(func() error {
			var err error
			since, err = d.repos.SyncMeta.TypeCheckpoint(ctx, scope, t)
			return err
		}); err != nil {
			return err
		}

		typeCaughtUp, err := d.pullType(ctx, t, since, remoteProjectID)
		if err != nil {
			scopeErr = err
			break
		}
		if typeCaughtUp > since {
			if err := d.locked(func() error {
				return d.repos.SyncMeta.AdvanceTypeCheckpoint(ctx, scope, t, typeCaughtUp)
			}); err != nil {
				return err
			}
		}
		if typeCaughtUp > caughtUp {
			caughtUp = typeCaughtUp
		}
	}

	if scopeErr != nil {
		d.logger.Error(ctx, "Scope sync failed", "scope", scope, "error", scopeErr)
		if err := d.locked(func() error {
			return d.repos.SyncMeta.SetStatus(ctx, scope, models.SyncError, scopeErr.Error(), state.LastSyncedAt)
		}); err != nil {
			return err
		}
		return scopeErr
	}

	return d.locked(func() error {
		if caughtUp > state.Checkpoint {
			if err := d.repos.SyncMeta.AdvanceCheckpoint(ctx, scope, caughtUp); err != nil {
				return err
			}
		}
		return d.repos.SyncMeta.SetStatus(ctx, scope, models.SyncIdle, "", nowMillis())
	})
}

// pullType pages through one entity type and merges every row. It returns
// the maximum row timestamp merged so far; rows stamped after the pull are
// picked up by the next cycle.
func (d *Downloader) pullType(ctx context.Context, t model.EntityType, since int64, remoteProjectID string) (int64, error) {
	caughtUp := since

	for {
		resp, err := d.api.Pull(ctx, t, caughtUp, remoteProjectID, pullPageLimit)
		if err != nil {
			return caughtUp, err
		}

		for _, row := range resp.Rows {
			var applied bool
			err := d.locked(func() error {
				var err error
				applied, err = d.merge(ctx, t, row)
				return err
			})
			if err != nil {
				return caughtUp, err
			}
			if !applied {
				// a reference is not locally known yet; stop here so the
				// checkpoint cannot skip past the row
				return caughtUp, nil
			}
			if row.UpdatedAt > caughtUp {
				caughtUp = row.UpdatedAt
			}
		}

		if len(resp.Rows) < pullPageLimit {
			return caughtUp, nil
		}
	}
}

// merge applies one remote row to the local store. It reports false, without
// error, when the row references an entity with no local mapping yet.
func (d *Downloader) merge(ctx context.Context, t model.EntityType, row api.Row) (bool, error) {
	localID, err := d.repos.IDMap.ResolveLocal(ctx, t, row.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return d.mergeUnknown(ctx, t, row)
	}
	if err != nil {
		return false, err
	}

	local, err := d.repos.Store.Get(ctx, t, localID)
	if errors.Is(err, common.ErrorNotFound) {
		if row.Tombstoned() {
			// locally purged already
			return true, nil
		}
		// purged after a delete ack, then resurrected by another device's
		// winning update; bring it back under the existing mapping
		return d.reinsert(ctx, t, localID, row)
	}
	if err != nil {
		return false, err
	}

	// our own push echoes back with the timestamp we already recorded
	if row.UpdatedAt <= local.RemoteUpdatedAt {
		return true, nil
	}

	if local.Dirty {
		if _, err := d.resolver.Resolve(ctx, local, row); err != nil {
			return false, err
		}
		d.notify(t, localID)
		return true, nil
	}

	if err := d.overwriteClean(ctx, local, row); err != nil {
		if errors.Is(err, errUnknownReference) {
			return false, nil
		}
		return false, err
	}
	d.notify(t, localID)
	return true, nil
}

var errUnknownReference = errors.New("reference not locally known")

// mergeUnknown inserts a clean local row for a remote id seen for the first
// time.
func (d *Downloader) mergeUnknown(ctx context.Context, t model.EntityType, row api.Row) (bool, error) {
	if row.Tombstoned() {
		// deleted before this device ever saw it
		return true, nil
	}

	payload, projectLocalID, err := d.localize(ctx, t, row)
	if err != nil {
		if errors.Is(err, errUnknownReference) {
			return false, nil
		}
		return false, err
	}

	localID := uuid.NewString()
	if err := d.repos.IDMap.RecordMapping(ctx, t, localID, row.ID); err != nil {
		return false, err
	}

	err = d.repos.Store.Put(ctx, &models.Row{
		LocalID:         localID,
		RemoteID:        row.ID,
		EntityType:      t,
		ProjectID:       projectLocalID,
		Payload:         payload,
		UpdatedAt:       row.UpdatedAt,
		RemoteUpdatedAt: row.UpdatedAt,
	})
	if err != nil {
		return false, err
	}

	d.notify(t, localID)
	return true, nil
}

// reinsert restores a clean local row for a remote id whose mapping
// survived a local purge.
func (d *Downloader) reinsert(ctx context.Context, t model.EntityType, localID string, row api.Row) (bool, error) {
	payload, projectLocalID, err := d.localize(ctx, t, row)
	if err != nil {
		if errors.Is(err, errUnknownReference) {
			return false, nil
		}
		return false, err
	}

	err = d.repos.Store.Put(ctx, &models.Row{
		LocalID:         localID,
		RemoteID:        row.ID,
		EntityType:      t,
		ProjectID:       projectLocalID,
		Payload:         payload,
		UpdatedAt:       row.UpdatedAt,
		RemoteUpdatedAt: row.UpdatedAt,
	})
	if err != nil {
		return false, err
	}

	d.notify(t, localID)
	return true, nil
}

// overwriteClean replaces a clean local row with the remote version,
// tombstone included.
func (d *Downloader) overwriteClean(ctx context.Context, local *models.Row, row api.Row) error {
	if row.Tombstoned() {
		// the delete is acknowledged remote state; the local copy can go
		if err := d.repos.Store.Purge(ctx, local.EntityType, local.LocalID); err != nil {
			return err
		}
		if local.EntityType == model.EntityProject {
			return d.repos.SyncMeta.Delete(ctx, local.LocalID)
		}
		return nil
	}

	updated := *local
	updated.UpdatedAt = row.UpdatedAt
	updated.RemoteUpdatedAt = row.UpdatedAt
	updated.Dirty = false

	payload, projectLocalID, err := d.localize(ctx, local.EntityType, row)
	if err != nil {
		return err
	}
	updated.Deleted = false
	updated.Payload = payload
	updated.ProjectID = projectLocalID
	return d.repos.Store.Put(ctx, &updated)
}

// localize rewrites remote reference ids to local ones and resolves the
// project scope column.
func (d *Downloader) localize(ctx context.Context, t model.EntityType, row api.Row) ([]byte, string, error) {
	payload, err := model.DecodePayload(t, row.Payload)
	if err != nil {
		return nil, "", fmt.Errorf("%v: %w", err, common.ErrorValidation)
	}

	unresolved := false
	err = payload.Rewrite(func(refType model.EntityType, remoteID string) (string, bool) {
		localID, err := d.repos.IDMap.ResolveLocal(ctx, refType, remoteID)
		if err != nil {
			unresolved = true
			return "", false
		}
		return localID, true
	})
	if err != nil {
		if unresolved {
			return nil, "", errUnknownReference
		}
		return nil, "", err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, "", err
	}
	return data, localProjectID(payload), nil
}
