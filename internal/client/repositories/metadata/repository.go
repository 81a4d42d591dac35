// Package metadata is a small key/value store for client bookkeeping that
// does not synchronize: auth tokens, the device id, the logged-in username.
package metadata

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
