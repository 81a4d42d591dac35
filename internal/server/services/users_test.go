package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/dbx"
	"github.com/dmitrijs2005/worldloom/internal/server/config"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
	"github.com/dmitrijs2005/worldloom/internal/server/repositories/entities"
	"github.com/dmitrijs2005/worldloom/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/worldloom/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fakeUsers struct {
	byName map[string]*models.User
	nextID int
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byName: make(map[string]*models.User)} }

func (f *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	if _, ok := f.byName[u.Username]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	u.ID = string(rune('0' + f.nextID))
	f.byName[u.Username] = u
	return u, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshTokens struct {
	byToken map[string]*models.RefreshToken
}

func newFakeRefreshTokens() *fakeRefreshTokens {
	return &fakeRefreshTokens{byToken: make(map[string]*models.RefreshToken)}
}

func (f *fakeRefreshTokens) Add(_ context.Context, t *models.RefreshToken) error {
	f.byToken[t.Token] = t
	return nil
}

func (f *fakeRefreshTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshTokens) Delete(_ context.Context, token string) error {
	delete(f.byToken, token)
	return nil
}

type fakeUserManager struct {
	users  *fakeUsers
	tokens *fakeRefreshTokens
}

func (m *fakeUserManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeUserManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
func (m *fakeUserManager) Entities(dbx.DBTX) entities.Repository           { return nil }

func newUserService(t *testing.T) (*UserService, *fakeUserManager) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := &fakeUserManager{users: newFakeUsers(), tokens: newFakeRefreshTokens()}
	cfg := &config.Config{
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	return NewUserService(db, m, cfg), m
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotContains(t, string(u.PasswordHash), "hunter2", "password must not be stored in clear")

	pair, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = svc.Login(ctx, "nobody", "hunter2")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRefreshToken_Rotates(t *testing.T) {
	svc, m := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	next, err := svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old token is gone.
	_, err = svc.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, ok := m.tokens.byToken[next.RefreshToken]
	assert.True(t, ok)
}

func TestRefreshToken_Expired(t *testing.T) {
	svc, m := newUserService(t)
	ctx := context.Background()

	m.tokens.byToken["stale"] = &models.RefreshToken{
		Token:   "stale",
		UserID:  "1",
		Expires: time.Now().Add(-time.Minute).UnixMilli(),
	}

	_, err := svc.RefreshToken(ctx, "stale")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}
