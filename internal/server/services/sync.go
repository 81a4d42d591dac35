package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
	"github.com/dmitrijs2005/worldloom/internal/server/repositories/repomanager"
)

// nowMillis is a clock seam for tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// ConflictError reports a rejected write together with the current remote row
// so the client can resolve without another round trip. It matches
// common.ErrVersionConflict via errors.Is.
type ConflictError struct {
	Current *models.Entity
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: remote row updated at %d", e.Current.UpdatedAt)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

// stampClock allocates write timestamps strictly increasing per owner.
// Distinct stamps keep checkpoint paging exact: a client resuming from the
// last row it saw can never have an equal-stamped sibling hide behind the
// page boundary.
type stampClock struct {
	mu   sync.Mutex
	last map[string]int64
}

func newStampClock() *stampClock {
	return &stampClock{last: map[string]int64{}}
}

// next returns a stamp above both the owner's previous stamp and floor.
func (c *stampClock) next(ownerID string, floor int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := nowMillis()
	if ts <= c.last[ownerID] {
		ts = c.last[ownerID] + 1
	}
	if ts <= floor {
		ts = floor + 1
	}
	c.last[ownerID] = ts
	return ts
}

// SyncService implements the server half of the sync protocol.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	stamps      *stampClock
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager) *SyncService {
	return &SyncService{db: db, repomanager: m, stamps: newStampClock()}
}

// Create inserts an entity for the given owner. Retried creates return the
// original row: the (owner_id, client_id) constraint makes the call
// idempotent, no duplicate rows and no timestamp bump.
func (s *SyncService) Create(ctx context.Context, ownerID string, t model.EntityType, req *api.CreateRequest) (*models.Entity, error) {
	if len(req.Payload) == 0 || req.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id and payload are required", common.ErrorValidation)
	}
	if _, err := model.DecodePayload(t, req.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	repo := s.repomanager.Entities(s.db)
	return repo.Insert(ctx, t, &models.Entity{
		OwnerID:   ownerID,
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Payload:   req.Payload,
		CreatedAt: s.stamps.next(ownerID, 0),
	})
}

// Update overwrites an entity, enforcing the freshness precondition: the
// stored row must not be newer than the snapshot the client based its edit on
// (req.BaseUpdatedAt), unless the client resolved that exact conflict locally
// and marked the push with SupersedesUpdatedAt equal to the stored timestamp.
// Conflicting writes return a *ConflictError carrying the current row.
func (s *SyncService) Update(ctx context.Context, ownerID string, t model.EntityType, id string, req *api.UpdateRequest) (int64, error) {
	if len(req.Payload) == 0 {
		return 0, fmt.Errorf("%w: payload is required", common.ErrorValidation)
	}
	if _, err := model.DecodePayload(t, req.Payload); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	var updatedAt int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entities(tx)

		current, err := repo.Get(ctx, t, ownerID, id)
		if err != nil {
			return err
		}
		if err := checkPrecondition(current, req.BaseUpdatedAt, req.SupersedesUpdatedAt); err != nil {
			return err
		}

		updatedAt = s.stamps.next(ownerID, current.UpdatedAt)
		return repo.Update(ctx, t, ownerID, id, req.Payload, updatedAt)
	})
	if err != nil {
		return 0, err
	}
	return updatedAt, nil
}

// Delete tombstones an entity with the same precondition rules as Update.
// Deleting an already tombstoned row is a no-op returning the existing
// timestamp, so delete retries converge.
func (s *SyncService) Delete(ctx context.Context, ownerID string, t model.EntityType, id string, req *api.DeleteRequest) (int64, error) {
	var updatedAt int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entities(tx)

		current, err := repo.Get(ctx, t, ownerID, id)
		if err != nil {
			return err
		}
		if current.Tombstoned() {
			updatedAt = current.UpdatedAt
			return nil
		}
		if err := checkPrecondition(current, req.BaseUpdatedAt, req.SupersedesUpdatedAt); err != nil {
			return err
		}

		updatedAt = s.stamps.next(ownerID, current.UpdatedAt)
		return repo.SoftDelete(ctx, t, ownerID, id, updatedAt)
	})
	if err != nil {
		return 0, err
	}
	return updatedAt, nil
}

// Pull returns rows changed since the checkpoint, tombstones included.
func (s *SyncService) Pull(ctx context.Context, ownerID string, t model.EntityType, since int64, projectID string, limit int) (*api.PullResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	repo := s.repomanager.Entities(s.db)
	rows, err := repo.SelectUpdated(ctx, t, ownerID, since, projectID, limit)
	if err != nil {
		return nil, err
	}

	resp := &api.PullResponse{ServerTime: nowMillis(), Rows: make([]api.Row, 0, len(rows))}
	for _, e := range rows {
		resp.Rows = append(resp.Rows, api.Row{
			ID:        e.ID,
			ClientID:  e.ClientID,
			ProjectID: e.ProjectID,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
			DeletedAt: e.DeletedAt,
		})
	}
	return resp, nil
}

func checkPrecondition(current *models.Entity, base, supersedes int64) error {
	if current.UpdatedAt <= base {
		return nil
	}
	if supersedes != 0 && current.UpdatedAt == supersedes {
		return nil
	}
	return &ConflictError{Current: current}
}
