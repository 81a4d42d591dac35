package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/worldloom/internal/client/config"
	"github.com/dmitrijs2005/worldloom/internal/logging"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

func newTestEngine(t *testing.T, srv *fakeServer, dev *device) *Engine {
	t.Helper()
	cfg := &config.Config{
		OnlineCheckInterval: 10 * time.Millisecond,
		SyncInterval:        20 * time.Millisecond,
		RequestTimeout:      time.Second,
	}
	return NewEngine(cfg, srv, dev.up, dev.down, logging.NewJSON(io.Discard))
}

func TestEngineSyncsWhileOnline(t *testing.T) {
	setClock(t, 1_000)
	srv := newFakeServer()
	dev := newDevice(t, srv)
	engine := newTestEngine(t, srv, dev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	_, err := dev.lib.Create(ctx, model.EntityProject, &model.Project{Name: "Midgard"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return engine.Online() && srv.rowCount(model.EntityProject) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEngineReportsOfflineState(t *testing.T) {
	setClock(t, 1_000)
	srv := newFakeServer()
	srv.setOffline(true)
	dev := newDevice(t, srv)
	engine := newTestEngine(t, srv, dev)

	require.Equal(t, StateOffline, engine.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// stays offline while the server is unreachable
	time.Sleep(50 * time.Millisecond)
	require.False(t, engine.Online())

	// reconnect triggers a sync without waiting for the next tick
	_, err := dev.lib.Create(ctx, model.EntityProject, &model.Project{Name: "Midgard"})
	require.NoError(t, err)
	srv.setOffline(false)

	require.Eventually(t, func() bool {
		return srv.rowCount(model.EntityProject) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEngineSyncNowCoalesces(t *testing.T) {
	srv := newFakeServer()
	dev := newDevice(t, srv)
	engine := newTestEngine(t, srv, dev)

	// multiple kicks while no loop is draining collapse into one
	engine.SyncNow()
	engine.SyncNow()
	engine.SyncNow()
	require.Len(t, engine.kick, 1)
}
