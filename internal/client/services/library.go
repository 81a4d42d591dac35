// Package services implements the client-side sync core: the library service
// for local edits, the uploader draining the change journal, the downloader
// merging remote pages, the conflict resolver and the engine that drives
// them.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/journal"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/store"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// nowMillis is a clock seam for tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// ChangeEvent notifies a UI consumer that an entity changed in the local
// store, whatever the origin of the change.
type ChangeEvent struct {
	Type    model.EntityType
	LocalID string
}

// LibraryService is the local edit surface. Every mutation lands in the
// store and the change journal in one transaction; nothing here ever blocks
// on the network or on sync state.
type LibraryService struct {
	repos  *client.Repositories
	mu     *sync.Mutex
	subsMu sync.Mutex
	subs   []chan ChangeEvent
}

// NewLibraryService binds the service to the repositories and the store
// mutex it shares with the sync engine.
func NewLibraryService(repos *client.Repositories, mu *sync.Mutex) *LibraryService {
	return &LibraryService{repos: repos, mu: mu}
}

// Subscribe returns a channel receiving change notifications. Slow consumers
// lose events instead of blocking mutations.
func (s *LibraryService) Subscribe() <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 16)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *LibraryService) notify(t model.EntityType, localID string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ChangeEvent{Type: t, LocalID: localID}:
		default:
		}
	}
}

// Create stores a new entity and journals its creation. The returned id is
// the device-local identifier; the server-assigned one appears after sync.
func (s *LibraryService) Create(ctx context.Context, t model.EntityType, payload model.Payload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRefs(ctx, payload); err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	localID := uuid.NewString()
	row := &models.Row{
		LocalID:    localID,
		EntityType: t,
		ProjectID:  localProjectID(payload),
		Payload:    data,
		UpdatedAt:  nowMillis(),
		Dirty:      true,
	}

	err = dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := store.NewSQLiteRepository(tx).Put(ctx, row); err != nil {
			return err
		}
		_, err := journal.NewSQLiteRepository(tx).Append(ctx, &models.Mutation{
			EntityType: t,
			LocalID:    localID,
			Op:         models.OpCreate,
			Payload:    data,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	s.notify(t, localID)
	return localID, nil
}

// Update overwrites the entity payload and journals the change.
func (s *LibraryService) Update(ctx context.Context, t model.EntityType, localID string, payload model.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repos.Store.Get(ctx, t, localID)
	if err != nil {
		return err
	}
	if existing.Deleted {
		return fmt.Errorf("updating deleted %s %s: %w", t, localID, common.ErrorNotFound)
	}

	if err := s.checkRefs(ctx, payload); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	row := *existing
	row.Payload = data
	row.ProjectID = localProjectID(payload)
	row.UpdatedAt = nowMillis()
	row.Dirty = true

	err = dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := store.NewSQLiteRepository(tx).Put(ctx, &row); err != nil {
			return err
		}
		_, err := journal.NewSQLiteRepository(tx).Append(ctx, &models.Mutation{
			EntityType: t,
			LocalID:    localID,
			Op:         models.OpUpdate,
			Payload:    data,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.notify(t, localID)
	return nil
}

// Delete tombstones the entity. An entity the server never saw is purged
// outright together with its queued mutations; a synchronized one keeps its
// tombstone until the remote delete is acknowledged.
func (s *LibraryService) Delete(ctx context.Context, t model.EntityType, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repos.Store.Get(ctx, t, localID)
	if err != nil {
		return err
	}
	if existing.Deleted {
		return nil
	}

	_, mapErr := s.repos.IDMap.ResolveRemote(ctx, t, localID)
	neverUploaded := errors.Is(mapErr, common.ErrorNotFound)
	if mapErr != nil && !neverUploaded {
		return mapErr
	}

	err = dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := store.NewSQLiteRepository(tx)
		jr := journal.NewSQLiteRepository(tx)

		if neverUploaded {
			if err := jr.DropPending(ctx, t, localID); err != nil {
				return err
			}
			return st.Purge(ctx, t, localID)
		}

		if err := st.Tombstone(ctx, t, localID, nowMillis()); err != nil {
			return err
		}
		_, err := jr.Append(ctx, &models.Mutation{
			EntityType: t,
			LocalID:    localID,
			Op:         models.OpDelete,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.notify(t, localID)
	return nil
}

// Get returns one entity row, tombstoned or not.
func (s *LibraryService) Get(ctx context.Context, t model.EntityType, localID string) (*models.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos.Store.Get(ctx, t, localID)
}

// List returns the live entities of one kind, optionally scoped to a
// project's local id.
func (s *LibraryService) List(ctx context.Context, t model.EntityType, projectLocalID string) ([]models.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos.Store.List(ctx, t, projectLocalID)
}

// Status returns the per-scope sync states plus journal queue depths.
func (s *LibraryService) Status(ctx context.Context) ([]models.ScopeState, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.repos.SyncMeta.List(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	pending, failed, err := s.repos.Journal.Counts(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	return states, pending, failed, nil
}

// checkRefs enforces the local referential invariants: required references
// must name live local rows. Relationships additionally require source and
// target to live in the referenced project.
func (s *LibraryService) checkRefs(ctx context.Context, payload model.Payload) error {
	projectID := localProjectID(payload)

	for _, ref := range payload.Refs() {
		if ref.ID == "" {
			if ref.Optional {
				continue
			}
			return fmt.Errorf("missing %s reference: %w", ref.Type, common.ErrorValidation)
		}

		parent, err := s.repos.Store.Get(ctx, ref.Type, ref.ID)
		if err != nil {
			return fmt.Errorf("%s %s: %w", ref.Type, ref.ID, err)
		}
		if parent.Deleted {
			return fmt.Errorf("%s %s: %w", ref.Type, ref.ID, common.ErrTombstonedParent)
		}
		if ref.Type == model.EntityElement && parent.ProjectID != projectID {
			return fmt.Errorf("element %s belongs to another project: %w", ref.ID, common.ErrorValidation)
		}
	}
	return nil
}

func marshalPayload(p model.Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return data, nil
}

// localProjectID extracts the owning project's local id for the store's
// project column. Projects and global templates scope to the projects
// collection itself.
func localProjectID(payload model.Payload) string {
	switch p := payload.(type) {
	case *model.WorldElement:
		return p.ProjectID
	case *model.Relationship:
		return p.ProjectID
	case *model.QuestionnaireTemplate:
		return p.ProjectID
	default:
		return ""
	}
}
