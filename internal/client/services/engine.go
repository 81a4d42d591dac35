package services

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/config"
	"github.com/dmitrijs2005/worldloom/internal/logging"
)

// State is the engine's coarse mode, surfaced by the CLI prompt.
type State string

const (
	StateOffline State = "offline"
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Engine owns the periodic sync cycles: one uploader pass followed by one
// downloader pass. The passes take the shared store mutex only around local
// bookkeeping, so interactive edits never wait on a network call; an
// interrupted cycle picks up from the journal and checkpoints next time.
type Engine struct {
	cfg        *config.Config
	api        client.Client
	uploader   *Uploader
	downloader *Downloader
	logger     logging.Logger

	online  atomic.Bool
	syncing atomic.Bool
	kick    chan struct{}
}

func NewEngine(cfg *config.Config, apiClient client.Client, uploader *Uploader, downloader *Downloader, logger logging.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		api:        apiClient,
		uploader:   uploader,
		downloader: downloader,
		logger:     logger.With("module", "engine"),
		kick:       make(chan struct{}, 1),
	}
}

// State reports the current engine mode.
func (e *Engine) State() State {
	switch {
	case e.syncing.Load():
		return StateSyncing
	case e.online.Load():
		return StateIdle
	default:
		return StateOffline
	}
}

// Online reports server reachability as seen by the watcher.
func (e *Engine) Online() bool { return e.online.Load() }

// SyncNow requests an immediate cycle. Non-blocking; a request issued while
// a cycle runs coalesces into one follow-up cycle.
func (e *Engine) SyncNow() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run drives the online watcher and the sync loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.watchOnline(ctx) })
	g.Go(func() error { return e.syncLoop(ctx) })

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// watchOnline probes the health endpoint and flips the online flag. An
// offline-to-online transition triggers an immediate sync pass.
func (e *Engine) watchOnline(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.OnlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
			err := e.api.Ping(pingCtx)
			cancel()

			wasOnline := e.online.Swap(err == nil)
			if err == nil && !wasOnline {
				e.logger.Info(ctx, "Server reachable, syncing")
				e.SyncNow()
			}
			if err != nil && wasOnline {
				e.logger.Info(ctx, "Server unreachable, working offline")
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) syncLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.online.Load() {
				e.runCycle(ctx)
			}
		case <-e.kick:
			e.runCycle(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runCycle performs one upload pass followed by one download pass.
func (e *Engine) runCycle(ctx context.Context) {
	e.syncing.Store(true)
	defer e.syncing.Store(false)

	if err := e.uploader.RunCycle(ctx); err != nil {
		e.logger.Error(ctx, "Upload cycle failed", "error", err)
		return
	}
	if err := e.downloader.RunCycle(ctx); err != nil {
		e.logger.Error(ctx, "Download cycle failed", "error", err)
	}
}
