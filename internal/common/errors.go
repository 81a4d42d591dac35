// Package common defines shared constants and sentinel errors used across
// client and server layers of Worldloom. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrVersionConflict is returned when a remote row is newer than the
	// snapshot a mutation was based on. The uploader routes it to the
	// conflict resolver instead of retrying blindly.
	ErrVersionConflict = errors.New("version conflict")

	// Consistency violations. Both are fatal for the specific mutation:
	// the journal entry is dropped and the failure surfaced via sync status.
	ErrIdentifierRemap  = errors.New("identifier already mapped to a different remote id")
	ErrTombstonedParent = errors.New("reference to a tombstoned parent")

	// Validation errors, rejected permanently without retry.
	ErrorValidation = errors.New("validation error")

	// Auth errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrorAlreadyExists     = errors.New("already exists")
)
