package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// memMetadata is an in-memory metadata.Repository for tests.
type memMetadata struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemMetadata() *memMetadata {
	return &memMetadata{values: map[string][]byte{}}
}

func (m *memMetadata) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memMetadata) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memMetadata) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memMetadata) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string][]byte{}
	return nil
}

var _ metadata.Repository = (*memMetadata)(nil)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginSavesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		writeJSON(w, http.StatusOK, &api.TokenResponse{AccessToken: "acc", RefreshToken: "ref"})
	}))
	defer srv.Close()

	meta := newMemMetadata()
	c := NewHTTPClient(srv.URL, time.Second, meta)

	require.NoError(t, c.Login(context.Background(), "alice", "pw"))
	assert.Equal(t, []byte("acc"), meta.values[metadata.KeyAccessToken])
	assert.Equal(t, []byte("ref"), meta.values[metadata.KeyRefreshToken])
}

func TestRefreshRetryOn401(t *testing.T) {
	var pulls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sync/project":
			pulls++
			if r.Header.Get(common.AuthorizationHeader) != common.BearerPrefix+"fresh" {
				writeJSON(w, http.StatusUnauthorized, &api.ErrorResponse{Message: "token expired"})
				return
			}
			writeJSON(w, http.StatusOK, &api.PullResponse{ServerTime: 42})
		case "/api/v1/auth/refresh":
			var req api.RefreshRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "old-refresh", req.RefreshToken)
			writeJSON(w, http.StatusOK, &api.TokenResponse{AccessToken: "fresh", RefreshToken: "fresh-refresh"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	meta := newMemMetadata()
	meta.values[metadata.KeyAccessToken] = []byte("stale")
	meta.values[metadata.KeyRefreshToken] = []byte("old-refresh")

	c := NewHTTPClient(srv.URL, time.Second, meta)

	resp, err := c.Pull(context.Background(), model.EntityProject, 0, "", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.ServerTime)
	assert.Equal(t, 2, pulls)
	assert.Equal(t, []byte("fresh-refresh"), meta.values[metadata.KeyRefreshToken])
}

func TestFailedRefreshIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			writeJSON(w, http.StatusUnauthorized, &api.ErrorResponse{Message: "refresh token expired"})
		default:
			writeJSON(w, http.StatusUnauthorized, &api.ErrorResponse{Message: "token expired"})
		}
	}))
	defer srv.Close()

	meta := newMemMetadata()
	meta.values[metadata.KeyRefreshToken] = []byte("dead")

	c := NewHTTPClient(srv.URL, time.Second, meta)

	_, err := c.Pull(context.Background(), model.EntityProject, 0, "", 100)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUpdateConflictCarriesRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, &api.ConflictResponse{
			Message: "version conflict",
			Row:     api.Row{ID: "r1", UpdatedAt: 7777, Payload: json.RawMessage(`{"name":"remote"}`)},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, newMemMetadata())

	_, err := c.Update(context.Background(), model.EntityElement, "r1",
		&api.UpdateRequest{Payload: json.RawMessage(`{}`), BaseUpdatedAt: 5000})
	require.ErrorIs(t, err, common.ErrVersionConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7777), conflict.Row.UpdatedAt)
}

func TestValidationErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, &api.ErrorResponse{Message: "validation error"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, newMemMetadata())

	_, err := c.Create(context.Background(), model.EntityElement,
		&api.CreateRequest{ClientID: "c1", Payload: json.RawMessage(`{"category":"nope"}`)})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestPullSendsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "300", q.Get("since"))
		assert.Equal(t, "p1", q.Get("project_id"))
		assert.Equal(t, "50", q.Get("limit"))
		writeJSON(w, http.StatusOK, &api.PullResponse{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, newMemMetadata())

	_, err := c.Pull(context.Background(), model.EntityElement, 300, "p1", 50)
	require.NoError(t, err)
}
