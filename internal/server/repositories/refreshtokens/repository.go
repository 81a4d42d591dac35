package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/server/models"
)

// Repository stores opaque refresh tokens. Tokens rotate: the service deletes
// a token inside the same transaction that issues its replacement.
type Repository interface {
	Add(ctx context.Context, token *models.RefreshToken) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
}
