// Package httpapi exposes the sync and auth services over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/logging"
	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
	"github.com/dmitrijs2005/worldloom/internal/server/services"
)

// UserService is the auth surface consumed by the API handlers.
type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// SyncService is the sync surface consumed by the API handlers.
type SyncService interface {
	Create(ctx context.Context, ownerID string, t model.EntityType, req *api.CreateRequest) (*models.Entity, error)
	Update(ctx context.Context, ownerID string, t model.EntityType, id string, req *api.UpdateRequest) (int64, error)
	Delete(ctx context.Context, ownerID string, t model.EntityType, id string, req *api.DeleteRequest) (int64, error)
	Pull(ctx context.Context, ownerID string, t model.EntityType, since int64, projectID string, limit int) (*api.PullResponse, error)
}

// AttachmentService hands out presigned URLs for attachment upload/download.
type AttachmentService interface {
	PresignedPair(ctx context.Context, ownerID string) (key, putURL, getURL string, err error)
}

type Server struct {
	address     string
	logger      logging.Logger
	users       UserService
	sync        SyncService
	attachments AttachmentService
	jwtSecret   []byte
}

func NewServer(address string, l logging.Logger, us UserService, ss SyncService, as AttachmentService, secretKey string) *Server {
	return &Server{
		address:     address,
		logger:      l.With("module", "httpapi"),
		users:       us,
		sync:        ss,
		attachments: as,
		jwtSecret:   []byte(secretKey),
	}
}

// Routes builds the router. Exposed separately from Run so tests can drive
// the handlers through httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/attachments/presign", s.handlePresign)

			r.Route("/sync/{type}", func(r chi.Router) {
				r.Get("/", s.handlePull)
				r.Post("/", s.handleCreate)
				r.Put("/{id}", s.handleUpdate)
				r.Delete("/{id}", s.handleDelete)
			})
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
