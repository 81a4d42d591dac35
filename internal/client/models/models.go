// Package models defines the client-side persistence shapes: local store
// rows, journaled mutations and per-scope sync metadata.
package models

import (
	"encoding/json"

	"github.com/dmitrijs2005/worldloom/internal/model"
)

// Row is one entity in the local durable store.
//
// UpdatedAt is the device-local modification time for local edits and the
// server stamp for remote-origin writes; the conflict resolver compares these
// values directly. RemoteUpdatedAt is the last acknowledged remote timestamp
// and serves as the precondition base for pushed updates and deletes.
type Row struct {
	LocalID         string
	RemoteID        string
	EntityType      model.EntityType
	ProjectID       string
	Payload         json.RawMessage
	UpdatedAt       int64
	RemoteUpdatedAt int64
	Deleted         bool
	Dirty           bool
}

// Op is the kind of a journaled mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation statuses. Pending entries are drained by the uploader; failed
// entries are kept for inspection and no longer retried.
const (
	MutationPending = "pending"
	MutationFailed  = "failed"
)

// Mutation is one append-only journal entry. Payload is the snapshot taken
// at edit time (empty for deletes). Supersedes carries the remote updated_at
// a locally-won conflict explicitly overrides, zero otherwise.
type Mutation struct {
	Seq        int64
	EntityType model.EntityType
	LocalID    string
	Op         Op
	Payload    json.RawMessage
	Supersedes int64
	RetryCount int
	NotBefore  int64
	Status     string
}

// SyncStatus is the UI-facing state of one sync scope.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)

// ScopeProjects is the scope covering the projects collection and all
// templates; every other scope is a project's local id and covers that
// project's elements and relationships.
const ScopeProjects = "projects"

// ScopeState is one sync_metadata row. Checkpoint is the highest remote
// updated_at the scope is known to be fully caught up to; it never regresses.
type ScopeState struct {
	Scope        string
	Checkpoint   int64
	Status       SyncStatus
	LastError    string
	LastSyncedAt int64
}
