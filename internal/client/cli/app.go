// Package cli is the interactive Worldloom client: a REPL over the local
// library with the sync engine running in the background. Every command
// works offline; the engine reconciles with the server whenever it is
// reachable.
package cli

import (
	"bufio"
	"context"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/worldloom/internal/client/client"
	"github.com/dmitrijs2005/worldloom/internal/client/config"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/worldloom/internal/client/services"
	"github.com/dmitrijs2005/worldloom/internal/logging"
)

type App struct {
	config  *config.Config
	repos   *client.Repositories
	api     client.Client
	library *services.LibraryService
	engine  *services.Engine
	reader  *bufio.Reader

	userName string

	// open project, empty until "open"
	projectID   string
	projectName string
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	repos, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	if err := ensureDeviceID(ctx, repos.Metadata); err != nil {
		return nil, err
	}

	apiClient := client.NewHTTPClient(c.ServerBaseURL, c.RequestTimeout, repos.Metadata)

	logger := logging.NewJSON(os.Stderr)
	mu := &sync.Mutex{}
	resolver := services.NewResolver(repos, logger)
	uploader := services.NewUploader(repos, apiClient, resolver, mu, logger)
	downloader := services.NewDownloader(repos, apiClient, resolver, mu, logger, nil)
	engine := services.NewEngine(c, apiClient, uploader, downloader, logger)

	app := &App{
		config:  c,
		repos:   repos,
		api:     apiClient,
		library: services.NewLibraryService(repos, mu),
		engine:  engine,
		reader:  bufio.NewReader(os.Stdin),
	}

	// a previous session's login survives restarts
	if name, err := repos.Metadata.Get(ctx, metadata.KeyUsername); err == nil && name != nil {
		app.userName = string(name)
	}

	return app, nil
}

// ensureDeviceID assigns a stable identifier on first run.
func ensureDeviceID(ctx context.Context, meta metadata.Repository) error {
	id, err := meta.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return err
	}
	if id != nil {
		return nil
	}
	return meta.Set(ctx, metadata.KeyDeviceID, []byte(uuid.NewString()))
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

// getStatus builds the prompt suffix: user, open project and engine state.
func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName
	}
	if a.projectName != "" {
		s += "/" + a.projectName
	}
	if s != "" {
		s += " "
	}
	return s + string(a.engine.State())
}

// Run starts the background sync engine and hands the terminal to the REPL.
// Returning from the REPL stops the engine.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := a.engine.Run(ctx); err != nil {
			log.Printf("sync engine stopped: %v", err)
		}
	}()

	printlnFn("Worldloom CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)

	if err := a.repos.DB.Close(); err != nil {
		log.Printf("closing database: %v", err)
	}
}
