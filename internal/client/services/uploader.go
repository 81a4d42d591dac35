package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/models"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/logging"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

const (
	uploadBatchSize = 100

	// journal-level backoff for transient failures
	backoffBase = time.Second
	backoffCap  = time.Minute

	// a mutation failing transiently this many times is parked as failed
	maxRetryBudget = 10
)

// errDeferred marks a mutation that cannot run yet: a referenced entity has
// no remote id. It stays pending and is re-examined next cycle.
var errDeferred = errors.New("mutation deferred")

// Uploader drains the change journal against the server, strictly in
// sequence order per entity. Mutations whose references cannot be rewritten
// to remote ids yet are held back together with everything queued behind
// them for the same entity.
//
// The store mutex is taken only around local reads and bookkeeping; network
// calls run outside it so local edits never wait on the wire.
type Uploader struct {
	repos    *client.Repositories
	api      client.Client
	resolver *Resolver
	mu       *sync.Mutex
	logger   logging.Logger
}

func NewUploader(repos *client.Repositories, apiClient client.Client, resolver *Resolver, mu *sync.Mutex, logger logging.Logger) *Uploader {
	return &Uploader{
		repos:    repos,
		api:      apiClient,
		resolver: resolver,
		mu:       mu,
		logger:   logger.With("module", "uploader"),
	}
}

func (u *Uploader) locked(fn func() error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn()
}

// RunCycle pushes one batch of pending mutations. Per-mutation failures are
// absorbed into journal state; the returned error reports only
// infrastructure trouble (local database failures).
func (u *Uploader) RunCycle(ctx context.Context) error {
	var batch []models.Mutation
	err := u.locked(func() error {
		var err error
		batch, err = u.repos.Journal.PeekBatch(ctx, uploadBatchSize)
		return err
	})
	if err != nil {
		return err
	}

	now := nowMillis()
	blocked := map[string]bool{}

	for _, m := range batch {
		key := string(m.EntityType) + "/" + m.LocalID
		if blocked[key] {
			continue
		}
		if m.NotBefore > now {
			blocked[key] = true
			continue
		}

		applyErr := u.apply(ctx, &m)
		if applyErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		blocked[key] = true

		if err := u.dispose(ctx, &m, applyErr); err != nil {
			return err
		}
	}

	return nil
}

// dispose routes a failed mutation: deferred ones wait, permanent rejections
// and exhausted retries are parked, everything else backs off.
func (u *Uploader) dispose(ctx context.Context, m *models.Mutation, applyErr error) error {
	switch {
	case errors.Is(applyErr, errDeferred):
		return nil

	case errors.Is(applyErr, common.ErrorValidation),
		errors.Is(applyErr, common.ErrIdentifierRemap),
		errors.Is(applyErr, common.ErrorUnauthorized):
		u.logger.Error(ctx, "Mutation rejected", "seq", m.Seq, "op", m.Op, "error", applyErr)
		return u.locked(func() error { return u.repos.Journal.MarkFailed(ctx, m.Seq) })

	default:
		retryCount := m.RetryCount + 1
		if retryCount > maxRetryBudget {
			u.logger.Error(ctx, "Mutation retry budget exhausted", "seq", m.Seq, "op", m.Op, "error", applyErr)
			return u.locked(func() error { return u.repos.Journal.MarkFailed(ctx, m.Seq) })
		}
		delay := backoffDelay(retryCount)
		u.logger.Debug(ctx, "Mutation requeued", "seq", m.Seq, "retry", retryCount, "delay", delay, "error", applyErr)
		return u.locked(func() error {
			return u.repos.Journal.Requeue(ctx, m.Seq, nowMillis()+delay.Milliseconds(), retryCount)
		})
	}
}

// backoffDelay doubles from backoffBase up to backoffCap.
func backoffDelay(retryCount int) time.Duration {
	d := backoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

func (u *Uploader) apply(ctx context.Context, m *models.Mutation) error {
	switch m.Op {
	case models.OpCreate:
		return u.applyCreate(ctx, m)
	case models.OpUpdate:
		return u.applyUpdate(ctx, m)
	case models.OpDelete:
		return u.applyDelete(ctx, m)
	default:
		return fmt.Errorf("unknown op %q: %w", m.Op, common.ErrorValidation)
	}
}

func (u *Uploader) applyCreate(ctx context.Context, m *models.Mutation) error {
	var req *api.CreateRequest
	err := u.locked(func() error {
		if _, err := u.repos.Store.Get(ctx, m.EntityType, m.LocalID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				// purged before it ever reached the server
				return u.repos.Journal.Ack(ctx, m.Seq)
			}
			return err
		}

		payload, remoteProject, err := u.remotePayload(ctx, m.EntityType, m.Payload)
		if err != nil {
			return err
		}

		// the local id doubles as the idempotency key: a retried create
		// lands on the same remote row
		req = &api.CreateRequest{ClientID: m.LocalID, ProjectID: remoteProject, Payload: payload}
		return nil
	})
	if err != nil || req == nil {
		return err
	}

	var resp *api.CreateResponse
	err = u.withAttemptRetry(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = u.api.Create(ctx, m.EntityType, req)
		return callErr
	})
	if err != nil {
		return err
	}

	return u.locked(func() error {
		if err := u.repos.IDMap.RecordMapping(ctx, m.EntityType, m.LocalID, resp.ID); err != nil {
			return err
		}
		if err := u.repos.Store.SetRemoteID(ctx, m.EntityType, m.LocalID, resp.ID, resp.UpdatedAt); err != nil {
			return err
		}
		if err := u.markCleanIfQuiet(ctx, m, resp.UpdatedAt); err != nil {
			return err
		}
		if err := u.repos.Journal.Ack(ctx, m.Seq); err != nil {
			return err
		}
		u.logger.Debug(ctx, "Create pushed", "type", m.EntityType, "local_id", m.LocalID, "remote_id", resp.ID)
		return nil
	})
}

func (u *Uploader) applyUpdate(ctx context.Context, m *models.Mutation) error {
	var (
		remoteID string
		row      *models.Row
		req      *api.UpdateRequest
	)
	err := u.locked(func() error {
		var err error
		remoteID, err = u.repos.IDMap.ResolveRemote(ctx, m.EntityType, m.LocalID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errDeferred
			}
			return err
		}

		row, err = u.repos.Store.Get(ctx, m.EntityType, m.LocalID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return u.repos.Journal.Ack(ctx, m.Seq)
			}
			return err
		}

		payload, _, err := u.remotePayload(ctx, m.EntityType, m.Payload)
		if err != nil {
			return err
		}

		req = &api.UpdateRequest{
			Payload:             payload,
			BaseUpdatedAt:       row.RemoteUpdatedAt,
			SupersedesUpdatedAt: m.Supersedes,
		}
		return nil
	})
	if err != nil || req == nil {
		return err
	}

	var resp *api.UpdateResponse
	err = u.withAttemptRetry(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = u.api.Update(ctx, m.EntityType, remoteID, req)
		return callErr
	})
	if err != nil {
		return u.maybeResolveConflict(ctx, row, err)
	}

	return u.locked(func() error {
		if err := u.repos.Store.SetRemoteID(ctx, m.EntityType, m.LocalID, remoteID, resp.UpdatedAt); err != nil {
			return err
		}
		if err := u.markCleanIfQuiet(ctx, m, resp.UpdatedAt); err != nil {
			return err
		}
		return u.repos.Journal.Ack(ctx, m.Seq)
	})
}

func (u *Uploader) applyDelete(ctx context.Context, m *models.Mutation) error {
	var (
		remoteID string
		row      *models.Row
		req      *api.DeleteRequest
	)
	err := u.locked(func() error {
		var err error
		remoteID, err = u.repos.IDMap.ResolveRemote(ctx, m.EntityType, m.LocalID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errDeferred
			}
			return err
		}

		row, err = u.repos.Store.Get(ctx, m.EntityType, m.LocalID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return u.repos.Journal.Ack(ctx, m.Seq)
			}
			return err
		}

		req = &api.DeleteRequest{
			BaseUpdatedAt:       row.RemoteUpdatedAt,
			SupersedesUpdatedAt: m.Supersedes,
		}
		return nil
	})
	if err != nil || req == nil {
		return err
	}

	err = u.withAttemptRetry(ctx, func(ctx context.Context) error {
		_, callErr := u.api.Delete(ctx, m.EntityType, remoteID, req)
		return callErr
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return u.maybeResolveConflict(ctx, row, err)
	}

	return u.locked(func() error {
		if err := u.repos.Journal.Ack(ctx, m.Seq); err != nil {
			return err
		}
		// tombstone acknowledged; the local row can go
		if err := u.repos.Store.Purge(ctx, m.EntityType, m.LocalID); err != nil {
			return err
		}
		if m.EntityType == model.EntityProject {
			if err := u.repos.SyncMeta.Delete(ctx, m.LocalID); err != nil {
				return err
			}
		}
		u.logger.Debug(ctx, "Delete pushed", "type", m.EntityType, "local_id", m.LocalID)
		return nil
	})
}

// maybeResolveConflict hands a version conflict to the resolver; any other
// error passes through for dispose to classify.
func (u *Uploader) maybeResolveConflict(ctx context.Context, row *models.Row, err error) error {
	var conflict *client.ConflictError
	if !errors.As(err, &conflict) {
		return err
	}

	var outcome Outcome
	resolveErr := u.locked(func() error {
		// the row may have changed while the request was in flight
		current, getErr := u.repos.Store.Get(ctx, row.EntityType, row.LocalID)
		if getErr != nil {
			return getErr
		}
		var rErr error
		outcome, rErr = u.resolver.Resolve(ctx, current, conflict.Row)
		return rErr
	})
	if resolveErr != nil {
		return resolveErr
	}

	if outcome == LocalWins {
		u.logger.Debug(ctx, "Conflict resolved, local wins", "type", row.EntityType, "local_id", row.LocalID)
	} else {
		u.logger.Debug(ctx, "Conflict resolved, remote wins", "type", row.EntityType, "local_id", row.LocalID)
	}
	// the journal now reflects the resolution: either this mutation gained a
	// supersedes marker or it was dropped with the rest of the queue
	return errDeferred
}

// markCleanIfQuiet clears the dirty flag only when no further mutations are
// queued for the entity; otherwise a later push finishes the job.
func (u *Uploader) markCleanIfQuiet(ctx context.Context, m *models.Mutation, remoteUpdatedAt int64) error {
	pending, err := u.repos.Journal.PendingForID(ctx, m.EntityType, m.LocalID)
	if err != nil {
		return err
	}
	if pending > 1 {
		return nil
	}
	return u.repos.Store.MarkClean(ctx, m.EntityType, m.LocalID, remoteUpdatedAt)
}

// remotePayload rewrites local reference ids to remote ones and returns the
// encoded payload plus the remote project id for the server's scope column.
func (u *Uploader) remotePayload(ctx context.Context, t model.EntityType, raw []byte) ([]byte, string, error) {
	payload, err := model.DecodePayload(t, raw)
	if err != nil {
		return nil, "", fmt.Errorf("%v: %w", err, common.ErrorValidation)
	}

	unresolved := false
	err = payload.Rewrite(func(refType model.EntityType, localID string) (string, bool) {
		remoteID, err := u.repos.IDMap.ResolveRemote(ctx, refType, localID)
		if err != nil {
			unresolved = true
			return "", false
		}
		return remoteID, true
	})
	if err != nil {
		if unresolved {
			return nil, "", errDeferred
		}
		return nil, "", err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, "", err
	}
	// after rewriting, the project reference holds the remote id the server
	// uses for its scope column
	return data, localProjectID(payload), nil
}

// withAttemptRetry retries quick transient blips within one cycle; sustained
// failure falls through to the journal-level backoff.
func (u *Uploader) withAttemptRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether an error is worth an immediate in-cycle retry.
// Everything outside the shared taxonomy (network trouble, 5xx) is.
func isTransient(err error) bool {
	var conflict *client.ConflictError
	if errors.As(err, &conflict) {
		return false
	}
	for _, sentinel := range []error{
		common.ErrorValidation,
		common.ErrorNotFound,
		common.ErrorUnauthorized,
		common.ErrorAlreadyExists,
		common.ErrIdentifierRemap,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}
