package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Client is the remote API surface the sync engine and CLI talk to.
// Implementations keep the auth token state; callers only pass domain data.
type Client interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error

	Create(ctx context.Context, t model.EntityType, req *api.CreateRequest) (*api.CreateResponse, error)
	Update(ctx context.Context, t model.EntityType, remoteID string, req *api.UpdateRequest) (*api.UpdateResponse, error)
	Delete(ctx context.Context, t model.EntityType, remoteID string, req *api.DeleteRequest) (*api.UpdateResponse, error)
	Pull(ctx context.Context, t model.EntityType, since int64, projectID string, limit int) (*api.PullResponse, error)

	Presign(ctx context.Context) (*api.PresignResponse, error)
}

// ConflictError carries the current remote row from a rejected write. It
// matches common.ErrVersionConflict via errors.Is.
type ConflictError struct {
	Row api.Row
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: remote row updated at %d", e.Row.UpdatedAt)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }
