// Package api defines the JSON wire types exchanged between the sync client
// and the server. Both sides import this package so request and response
// shapes cannot drift apart.
//
// All timestamps on the wire are unix milliseconds assigned by the server on
// write; last-write-wins comparisons are plain integer comparisons.
package api

import "encoding/json"

// Row is the remote representation of a synchronized entity. Tombstoned rows
// keep their payload and carry a non-nil DeletedAt so deletions propagate to
// other devices.
type Row struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"client_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
	DeletedAt *int64          `json:"deleted_at,omitempty"`
}

// Tombstoned reports whether the row is soft-deleted.
func (r Row) Tombstoned() bool { return r.DeletedAt != nil }

// CreateRequest creates an entity. ClientID makes the call idempotent: a
// retried create upserts into the existing row instead of duplicating it.
type CreateRequest struct {
	ClientID  string          `json:"client_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type CreateResponse struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

// UpdateRequest modifies an entity. BaseUpdatedAt is the remote timestamp the
// client's snapshot was based on; the server rejects the write with a
// conflict when its row is newer, unless SupersedesUpdatedAt matches the
// stored timestamp (the client resolved the conflict locally and this push
// explicitly supersedes that exact remote version).
type UpdateRequest struct {
	Payload             json.RawMessage `json:"payload"`
	BaseUpdatedAt       int64           `json:"base_updated_at"`
	SupersedesUpdatedAt int64           `json:"supersedes_updated_at,omitempty"`
}

type UpdateResponse struct {
	UpdatedAt int64 `json:"updated_at"`
}

// DeleteRequest soft-deletes an entity, with the same precondition rules as
// UpdateRequest.
type DeleteRequest struct {
	BaseUpdatedAt       int64 `json:"base_updated_at"`
	SupersedesUpdatedAt int64 `json:"supersedes_updated_at,omitempty"`
}

// PullResponse returns rows with updated_at strictly greater than the
// requested checkpoint, tombstones included, ordered by updated_at.
type PullResponse struct {
	Rows       []Row `json:"rows"`
	ServerTime int64 `json:"server_time"`
}

// ConflictResponse is the 409 body: the current remote row so the client can
// resolve without an extra round trip.
type ConflictResponse struct {
	Message string `json:"message"`
	Row     Row    `json:"row"`
}

// ErrorResponse is the generic non-2xx body.
type ErrorResponse struct {
	Message string `json:"message"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries a fresh access/refresh token pair. Refresh tokens
// rotate: using one invalidates it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// PresignResponse carries presigned S3 URLs for an element attachment. The
// client PUTs the file to PutURL and stores Key in the element payload.
type PresignResponse struct {
	Key    string `json:"key"`
	PutURL string `json:"put_url"`
	GetURL string `json:"get_url"`
}
