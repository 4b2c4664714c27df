package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"muster/api/internal/cache"
	"muster/api/internal/cache/cachetest"
	"muster/api/internal/config"
	"muster/api/internal/models"
	"muster/api/internal/repository/memory"
	"muster/api/internal/security"
	"muster/api/internal/service"
)

const checksumSecret = "test-checksum-secret"

var fastPasswords = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock   *clock
	store   *memory.Store
	memory  *cache.MemoryBackend
	backend *cachetest.FlakyBackend
	cache   *cache.AuthCache
	tokens  *service.TokenService
	authn   *service.Authenticator
	auth    *service.AuthService
	users   *service.UserService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{clock: newClock()}
	h.store = memory.NewStore().WithClock(h.clock.Now)
	h.memory = cache.NewMemoryBackend().WithClock(h.clock.Now)
	h.backend = cachetest.NewFlakyBackend(h.memory)
	h.cache = cache.NewAuthCache(h.backend, checksumSecret, zerolog.Nop())

	cfg := config.SecurityConfig{
		ChecksumSecret: checksumSecret,
		AccessTokenTTL: time.Hour,
		TokenBytes:     32,
	}
	h.tokens = service.NewTokenService(h.store.Tokens(), h.cache, cfg, zerolog.Nop()).WithClock(h.clock.Now)
	h.authn = service.NewAuthenticator(h.store.Tokens(), h.tokens, h.cache, zerolog.Nop())
	h.auth = service.NewAuthService(h.store.Users(), h.store.Tokens(), h.tokens, zerolog.Nop()).WithPasswordParams(fastPasswords)
	h.users = service.NewUserService(h.store.Users(), h.tokens, zerolog.Nop())
	return h
}

// register creates a user and returns the login result.
func (h *harness) register(t *testing.T, username string) service.AuthResult {
	t.Helper()
	res, err := h.auth.Register(context.Background(), service.RegisterInput{
		Username: username,
		Password: "password-" + username,
	})
	require.NoError(t, err)
	return res
}

// userWithRoles registers a user and sets roles directly in the store.
func (h *harness) userWithRoles(t *testing.T, username string, roles ...models.Role) (models.Identity, string) {
	t.Helper()
	res := h.register(t, username)

	user := res.User
	user.Roles = models.NewRoles(roles...)
	require.NoError(t, h.store.Users().Update(context.Background(), user))

	identity, ok, err := h.authn.Authenticate(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	return identity, res.AccessToken
}
