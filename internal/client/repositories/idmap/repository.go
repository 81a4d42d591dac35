// Package idmap records the correspondence between client-generated local
// ids and server-assigned remote ids. Mappings are written once and never
// change; a remap attempt indicates corrupted sync state.
package idmap

import (
	"context"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

type Repository interface {
	// RecordMapping stores localID↔remoteID. Recording an identical mapping
	// again is a no-op; mapping either id to something different returns
	// common.ErrIdentifierRemap.
	RecordMapping(ctx context.Context, t model.EntityType, localID, remoteID string) error

	// ResolveRemote returns the remote id for a local one.
	// Returns common.ErrorNotFound while unmapped.
	ResolveRemote(ctx context.Context, t model.EntityType, localID string) (string, error)

	// ResolveLocal returns the local id for a remote one.
	// Returns common.ErrorNotFound while unmapped.
	ResolveLocal(ctx context.Context, t model.EntityType, remoteID string) (string, error)
}
