package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksite/cmd/identity"
	"worksite/cmd/identity/identitytest"
	"worksite/cmd/security/password"
	"worksite/cmd/security/token"
)

const (
	testEmail    = "ana@obra.com"
	testPassword = "Concreto#2024"
	testUserID   = "01J0000000000000000000ANA0"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type serviceEnv struct {
	svc   *Service
	codec *JWTCodec
	store *MemoryStore
	users *identitytest.Users
	types *identitytest.UserTypes
	clock *testClock
	cfg   Config
}

func newServiceEnv(t *testing.T, mutate func(*Config)) serviceEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	codec, err := NewJWTCodec(cfg)
	require.NoError(t, err)

	hasher := password.DefaultConfig()
	hasher.Params.MemoryKiB = 8 * 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	users := identitytest.NewUsers(identity.User{
		ID:           testUserID,
		FirstName:    "Ana",
		LastName:     "Souza",
		Email:        testEmail,
		PasswordHash: hash,
		UserTypeID:   2,
	})
	types := identitytest.NewUserTypes(
		identity.UserType{ID: 1, Name: "Admin", ApproveMeasurement: true},
		identity.UserType{ID: 2, Name: "Engenheiro", ApproveMeasurement: true},
	)
	verifier, err := identity.NewCredentialVerifier(users, hasher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	store := NewMemoryStore(token.Digester{})
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}

	svc, err := NewService(cfg, Deps{
		Codec:     codec,
		Store:     store,
		Verifier:  verifier,
		Users:     users,
		UserTypes: types,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	return serviceEnv{svc: svc, codec: codec, store: store, users: users, types: types, clock: clock, cfg: cfg}
}

func (e serviceEnv) login(t *testing.T) Issued {
	t.Helper()
	out, err := e.svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return out
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, reason, FailureReason(err))
}

func TestService_LoginIssuesTokens(t *testing.T) {
	env := newServiceEnv(t, nil)

	out := env.login(t)
	assert.Equal(t, testUserID, out.User.ID)
	assert.Equal(t, Claims{
		UserID:       testUserID,
		Email:        testEmail,
		UserType:     2,
		UserTypeName: "Engenheiro",
		Permissions:  Permissions{ApproveMeasurement: true},
	}, out.Claims)
	assert.True(t, env.clock.Now().Add(env.cfg.AccessTokenTTL).Equal(out.AccessExp))
	assert.True(t, env.clock.Now().Add(env.cfg.RefreshTokenTTL).Equal(out.RefreshExp))

	got, err := env.codec.VerifyAccessToken(out.AccessToken, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, out.Claims, got)

	rec, err := env.store.FindActiveByToken(context.Background(), out.RefreshToken, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, testUserID, rec.UserID)
	assert.True(t, out.RefreshExp.Equal(rec.ExpiresAt))
}

func TestService_LoginFailuresLookAlike(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()

	_, wrongPassword := env.svc.Login(ctx, testEmail, "nope")
	_, unknownEmail := env.svc.Login(ctx, "ghost@obra.com", testPassword)

	requireReason(t, wrongPassword, ReasonBadCredentials)
	requireReason(t, unknownEmail, ReasonBadCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Zero(t, env.store.Len())
}

func TestService_LoginMissingUserType(t *testing.T) {
	env := newServiceEnv(t, nil)
	env.types.Delete(2)

	_, err := env.svc.Login(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.Zero(t, env.store.Len())
}

func TestService_RefreshAfterLogin(t *testing.T) {
	env := newServiceEnv(t, nil)
	in := env.login(t)
	env.clock.Advance(time.Minute)

	out, err := env.svc.Refresh(context.Background(), "  "+in.RefreshToken+"  ")
	require.NoError(t, err)
	assert.Empty(t, out.RefreshToken)
	assert.Equal(t, in.Claims, out.Claims)

	got, err := env.codec.VerifyAccessToken(out.AccessToken, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, testUserID, got.UserID)
}

func TestService_SequentialRefreshesSucceedWithoutRotation(t *testing.T) {
	env := newServiceEnv(t, nil)
	in := env.login(t)
	ctx := context.Background()

	_, err := env.svc.Refresh(ctx, in.RefreshToken)
	require.NoError(t, err)
	_, err = env.svc.Refresh(ctx, in.RefreshToken)
	require.NoError(t, err)
}

func TestService_RefreshSeesPermissionChanges(t *testing.T) {
	env := newServiceEnv(t, nil)
	in := env.login(t)
	require.True(t, in.Claims.Permissions.ApproveMeasurement)

	env.types.Put(identity.UserType{ID: 2, Name: "Engenheiro", ApproveMeasurement: false})

	out, err := env.svc.Refresh(context.Background(), in.RefreshToken)
	require.NoError(t, err)
	assert.False(t, out.Claims.Permissions.ApproveMeasurement)

	got, err := env.codec.VerifyAccessToken(out.AccessToken, env.clock.Now())
	require.NoError(t, err)
	assert.False(t, got.Permissions.ApproveMeasurement)
}

func TestService_RefreshSeesUserTypeChange(t *testing.T) {
	env := newServiceEnv(t, nil)
	in := env.login(t)

	u, err := env.users.FindByID(context.Background(), testUserID)
	require.NoError(t, err)
	u.UserTypeID = 1
	env.users.Put(u)

	out, err := env.svc.Refresh(context.Background(), in.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.Claims.UserType)
	assert.Equal(t, "Admin", out.Claims.UserTypeName)
}

func TestService_RefreshRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("after logout", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		in := env.login(t)
		require.NoError(t, env.svc.Logout(ctx, in.RefreshToken))

		_, err := env.svc.Refresh(ctx, in.RefreshToken)
		requireReason(t, err, ReasonSessionNotActive)
	})

	t.Run("expired", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		in := env.login(t)
		env.clock.Advance(env.cfg.RefreshTokenTTL + time.Second)

		_, err := env.svc.Refresh(ctx, in.RefreshToken)
		requireReason(t, err, ReasonTokenExpired)
	})

	t.Run("empty", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		_, err := env.svc.Refresh(ctx, "   ")
		requireReason(t, err, ReasonTokenInvalid)
	})

	t.Run("oversized", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		_, err := env.svc.Refresh(ctx, strings.Repeat("x", maxTokenLen+1))
		requireReason(t, err, ReasonTokenInvalid)
	})

	t.Run("access token presented", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		in := env.login(t)
		_, err := env.svc.Refresh(ctx, in.AccessToken)
		requireReason(t, err, ReasonTokenInvalid)
	})

	t.Run("signed but never stored", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		tok, _, err := env.codec.IssueRefreshToken(testUserID, env.clock.Now())
		require.NoError(t, err)

		_, err = env.svc.Refresh(ctx, tok)
		requireReason(t, err, ReasonSessionNotActive)
	})

	t.Run("subject mismatch", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		now := env.clock.Now()
		tok, exp, err := env.codec.IssueRefreshToken(testUserID, now)
		require.NoError(t, err)
		require.NoError(t, env.store.Create(ctx, Record{
			ID: "01J0000000000000000000REC0", UserID: "someone-else", Token: tok, ExpiresAt: exp, CreatedAt: now,
		}))

		_, err = env.svc.Refresh(ctx, tok)
		requireReason(t, err, ReasonSubjectMismatch)
	})

	t.Run("user deleted", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		in := env.login(t)
		env.users.Delete(testUserID)

		_, err := env.svc.Refresh(ctx, in.RefreshToken)
		requireReason(t, err, ReasonUserMissing)
	})

	t.Run("user type deleted", func(t *testing.T) {
		env := newServiceEnv(t, nil)
		in := env.login(t)
		env.types.Delete(2)

		_, err := env.svc.Refresh(ctx, in.RefreshToken)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})
}

func TestService_RotationInvalidatesPresentedToken(t *testing.T) {
	env := newServiceEnv(t, func(cfg *Config) { cfg.RotateRefreshTokens = true })
	ctx := context.Background()
	in := env.login(t)

	out, err := env.svc.Refresh(ctx, in.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, out.RefreshToken)
	assert.NotEqual(t, in.RefreshToken, out.RefreshToken)
	assert.True(t, env.clock.Now().Add(env.cfg.RefreshTokenTTL).Equal(out.RefreshExp))

	_, err = env.svc.Refresh(ctx, in.RefreshToken)
	requireReason(t, err, ReasonSessionNotActive)

	again, err := env.svc.Refresh(ctx, out.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, again.RefreshToken)
}

func TestService_LogoutNeverFailsOnClientInput(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	in := env.login(t)

	for _, tok := range []string{"", "   ", "garbage", strings.Repeat("x", maxTokenLen+1), in.RefreshToken, in.RefreshToken} {
		assert.NoError(t, env.svc.Logout(ctx, tok))
	}
}

func TestService_LogoutAll(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	a, b := env.login(t), env.login(t)

	n, err := env.svc.LogoutAll(ctx, testUserID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		_, err := env.svc.Refresh(ctx, tok)
		requireReason(t, err, ReasonSessionNotActive)
	}
}

func TestService_PurgeExpired(t *testing.T) {
	env := newServiceEnv(t, nil)
	env.login(t)
	env.login(t)

	n, err := env.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(env.cfg.RefreshTokenTTL)
	n, err = env.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Zero(t, env.store.Len())
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) Create(context.Context, Record) error { return s.err }
func (s failingStore) Revoke(context.Context, string, time.Time) error {
	return s.err
}
func (s failingStore) FindActiveByToken(context.Context, string, time.Time) (Record, error) {
	return Record{}, s.err
}

func TestService_StorageFailuresAreNotAuthFailures(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	in := env.login(t)

	boom := errors.New("db down")
	env.svc.deps.Store = failingStore{Store: env.store, err: boom}

	_, err := env.svc.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAuthentication)

	_, err = env.svc.Refresh(ctx, in.RefreshToken)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAuthentication)

	assert.ErrorIs(t, env.svc.Logout(ctx, in.RefreshToken), boom)
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(testConfig(), Deps{})
	assert.Error(t, err)
}
