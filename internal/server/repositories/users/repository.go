package users

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/server/models"
)

// Repository is the user account store.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
