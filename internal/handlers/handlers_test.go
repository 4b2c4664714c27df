package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muster/api/internal/cache"
	"muster/api/internal/cache/cachetest"
	"muster/api/internal/config"
	"muster/api/internal/models"
	"muster/api/internal/repository/memory"
	"muster/api/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

type testAPI struct {
	t       *testing.T
	router  *gin.Engine
	store   *memory.Store
	memory  *cache.MemoryBackend
	backend *cachetest.FlakyBackend
	objects *fakeObjects
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			ChecksumSecret: "handler-secret",
			AccessTokenTTL: time.Hour,
			TokenBytes:     32,
		},
		Storage: config.StorageConfig{PresignTTL: 15 * time.Minute},
	}

	api := &testAPI{
		t:       t,
		store:   memory.NewStore(),
		memory:  cache.NewMemoryBackend(),
		objects: &fakeObjects{objects: map[string][]byte{}},
	}
	api.backend = cachetest.NewFlakyBackend(api.memory)

	h := NewHandlerSet(zerolog.Nop(), cfg, Stores{
		Users:       api.store.Users(),
		Tokens:      api.store.Tokens(),
		GameSystems: api.store.GameSystems(),
		Factions:    api.store.Factions(),
	}, api.backend, api.objects,
		HealthCheck{Name: "database", Ping: func(context.Context) error { return nil }},
		HealthCheck{Name: "cache", Ping: func(context.Context) error { return cachetest.ErrUnavailable }},
	)
	h.authService.WithPasswordParams(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})

	api.router = gin.New()
	h.Register(api.router.Group("/api"))
	return api
}

type request struct {
	method string
	path   string
	token  string
	body   any
	basic  *[2]string
}

func (api *testAPI) do(r request) *httptest.ResponseRecorder {
	api.t.Helper()

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		require.NoError(api.t, err)
		body = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(r.method, "/api/v1"+r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.basic != nil {
		req.SetBasicAuth(r.basic[0], r.basic[1])
	}

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// register signs up username and returns its first token and user id.
func (api *testAPI) register(username string) (string, string) {
	api.t.Helper()
	rec := api.do(request{method: http.MethodPost, path: "/auth/register", body: map[string]string{
		"username": username,
		"password": "password-" + username,
	}})
	require.Equal(api.t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[registerResponse](api.t, rec)
	return resp.AccessToken, resp.UserID
}

// userWithRoles registers a user and rewrites its roles before the token is
// ever used, so no identity with the old roles is cached.
func (api *testAPI) userWithRoles(username string, roles ...models.Role) (string, string) {
	api.t.Helper()
	token, id := api.register(username)

	ctx := context.Background()
	user, err := api.store.Users().GetByID(ctx, id)
	require.NoError(api.t, err)
	user.Roles = models.NewRoles(roles...)
	require.NoError(api.t, api.store.Users().Update(ctx, user))
	return token, id
}

func (api *testAPI) createGameSystem(token, name, visibility string) (int, gameSystemResponse) {
	api.t.Helper()
	rec := api.do(request{method: http.MethodPost, path: "/game-systems", token: token, body: map[string]string{
		"name":       name,
		"visibility": visibility,
	}})
	if rec.Code != http.StatusCreated {
		return rec.Code, gameSystemResponse{}
	}
	return rec.Code, decode[gameSystemResponse](api.t, rec)
}

func TestRegisterLoginMe(t *testing.T) {
	api := newTestAPI(t)
	_, userID := api.register("ada")

	rec := api.do(request{method: http.MethodPost, path: "/auth/login", basic: &[2]string{"ada", "password-ada"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[tokenResponse](t, rec)
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, userID, login.UserID)
	assert.True(t, login.ExpiresAt.After(time.Now()))

	rec = api.do(request{method: http.MethodGet, path: "/users/me", token: login.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[struct {
		User struct {
			ID       string   `json:"id"`
			Roles    []string `json:"roles"`
			IsActive bool     `json:"isActive"`
		} `json:"user"`
	}](t, rec)
	assert.Equal(t, userID, me.User.ID)
	assert.Equal(t, []string{"hobbyist"}, me.User.Roles)
	assert.True(t, me.User.IsActive)
}

func TestLogin_Rejections(t *testing.T) {
	api := newTestAPI(t)
	api.register("ada")

	rec := api.do(request{method: http.MethodPost, path: "/auth/login"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="muster"`, rec.Header().Get("WWW-Authenticate"))

	rec = api.do(request{method: http.MethodPost, path: "/auth/login", basic: &[2]string{"ada", "nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(request{method: http.MethodPost, path: "/auth/login", basic: &[2]string{"ghost", "password-ada"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_Duplicate(t *testing.T) {
	api := newTestAPI(t)
	api.register("ada")

	rec := api.do(request{method: http.MethodPost, path: "/auth/register", body: map[string]string{
		"username": "ada",
		"password": "another-password",
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(request{method: http.MethodPost, path: "/auth/register", body: map[string]string{"username": "bob"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_CacheWriteFailure(t *testing.T) {
	api := newTestAPI(t)
	api.register("ada")
	api.backend.FailSet(true)

	rec := api.do(request{method: http.MethodPost, path: "/auth/login", basic: &[2]string{"ada", "password-ada"}})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[tokenResponse](t, rec)

	rec = api.do(request{method: http.MethodGet, path: "/users/me", token: login.AccessToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.memory.Keys())
}

func TestLogout(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("ada")

	require.Equal(t, http.StatusOK, api.do(request{method: http.MethodGet, path: "/users/me", token: token}).Code)
	require.NotEmpty(t, api.memory.Keys())

	rec := api.do(request{method: http.MethodPost, path: "/auth/logout", token: token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, api.memory.Keys())

	rec = api.do(request{method: http.MethodGet, path: "/users/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(request{method: http.MethodPost, path: "/auth/logout", token: token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeSessions(t *testing.T) {
	api := newTestAPI(t)
	first, _ := api.register("ada")
	rec := api.do(request{method: http.MethodPost, path: "/auth/login", basic: &[2]string{"ada", "password-ada"}})
	second := decode[tokenResponse](t, rec).AccessToken

	rec = api.do(request{method: http.MethodPost, path: "/auth/sessions/revoke", token: first})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revoked":2}`, rec.Body.String())

	for _, token := range []string{first, second} {
		assert.Equal(t, http.StatusUnauthorized, api.do(request{method: http.MethodGet, path: "/users/me", token: token}).Code)
	}
}

func TestAdminRoleChangeRevokesSessions(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.userWithRoles("root", models.RoleAdmin)
	tokenA, userID := api.register("ada")

	require.Equal(t, http.StatusOK, api.do(request{method: http.MethodGet, path: "/users/me", token: tokenA}).Code)

	rec := api.do(request{method: http.MethodPatch, path: "/users/" + userID, token: adminToken, body: map[string]any{
		"roles": []string{"hobbyist", "cataloguer"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := api.memory.Get(context.Background(), cache.UserKey(tokenA))
	assert.ErrorIs(t, err, cache.ErrMiss)

	rec = api.do(request{method: http.MethodGet, path: "/users/me", token: tokenA})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminNoOpPatchKeepsSessions(t *testing.T) {
	api := newTestAPI(t)
	adminToken, _ := api.userWithRoles("root", models.RoleAdmin)
	tokenA, userID := api.register("ada")

	rec := api.do(request{method: http.MethodPatch, path: "/users/" + userID, token: adminToken, body: map[string]any{
		"roles":       []string{"hobbyist"},
		"isActive":    true,
		"displayName": "Ada",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(request{method: http.MethodGet, path: "/users/me", token: tokenA})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPatchUser_Guards(t *testing.T) {
	api := newTestAPI(t)
	adminToken, adminID := api.userWithRoles("root", models.RoleAdmin)
	hobbyToken, _ := api.register("ada")

	rec := api.do(request{method: http.MethodPatch, path: "/users/" + adminID, token: hobbyToken, body: map[string]any{"isActive": false}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(request{method: http.MethodPatch, path: "/users/" + adminID, body: map[string]any{"isActive": false}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(request{method: http.MethodPatch, path: "/users/" + adminID, token: adminToken, body: map[string]any{"roles": []string{"wizard"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(request{method: http.MethodPatch, path: "/users/missing", token: adminToken, body: map[string]any{"isActive": false}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog_RequiresIdentity(t *testing.T) {
	api := newTestAPI(t)

	for _, token := range []string{"", "garbage"} {
		rec := api.do(request{method: http.MethodGet, path: "/game-systems", token: token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	}
}

func TestCatalog_HobbyistCreate(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.register("ada")

	code, _ := api.createGameSystem(token, "Public", "public")
	assert.Equal(t, http.StatusForbidden, code)

	code, gs := api.createGameSystem(token, "Private", "private")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, userID, gs.CreatedBy)
	assert.Equal(t, models.VisibilityPrivate, gs.Visibility)

	code, _ = api.createGameSystem(token, "Bogus", "secret")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestCatalog_VisibilityFilter(t *testing.T) {
	api := newTestAPI(t)
	owner, _ := api.register("ada")
	other, _ := api.register("bob")
	cataloguer, _ := api.userWithRoles("carl", models.RoleCataloguer)

	_, limited := api.createGameSystem(owner, "Limited", "limited")
	_, _ = api.createGameSystem(cataloguer, "Public", "public")

	list := func(token string) []string {
		rec := api.do(request{method: http.MethodGet, path: "/game-systems", token: token})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[struct {
			Items []gameSystemResponse `json:"items"`
		}](t, rec)
		names := []string{}
		for _, it := range resp.Items {
			names = append(names, it.Name)
		}
		return names
	}

	assert.Equal(t, []string{"Public"}, list(other))
	assert.Equal(t, []string{"Limited", "Public"}, list(owner))
	assert.Equal(t, []string{"Limited", "Public"}, list(cataloguer))

	rec := api.do(request{method: http.MethodGet, path: "/game-systems/" + limited.ID, token: other})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unreadable items look missing")

	rec = api.do(request{method: http.MethodDelete, path: "/game-systems/" + limited.ID, token: other})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog_CataloguerTransitions(t *testing.T) {
	api := newTestAPI(t)
	cataloguer, _ := api.userWithRoles("carl", models.RoleCataloguer)
	_, gs := api.createGameSystem(cataloguer, "Public", "public")

	rec := api.do(request{method: http.MethodPatch, path: "/game-systems/" + gs.ID, token: cataloguer, body: map[string]string{"visibility": "private"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(request{method: http.MethodPatch, path: "/game-systems/" + gs.ID, token: cataloguer, body: map[string]string{"name": "Renamed"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decode[gameSystemResponse](t, rec).Name)
}

func TestCatalog_DeleteWithChildrenConflicts(t *testing.T) {
	api := newTestAPI(t)
	admin, _ := api.userWithRoles("root", models.RoleAdmin)
	_, gs := api.createGameSystem(admin, "System", "public")

	rec := api.do(request{method: http.MethodPost, path: "/factions", token: admin, body: map[string]any{
		"name":         "Imperium",
		"gameSystemId": gs.ID,
		"visibility":   "public",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	parent := decode[factionResponse](t, rec)

	rec = api.do(request{method: http.MethodPost, path: "/factions", token: admin, body: map[string]any{
		"name":         "Guard",
		"gameSystemId": gs.ID,
		"parentId":     parent.ID,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	child := decode[factionResponse](t, rec)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	rec = api.do(request{method: http.MethodPatch, path: "/factions/" + child.ID, token: admin, body: map[string]any{"parentId": child.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, http.StatusConflict, api.do(request{method: http.MethodDelete, path: "/factions/" + parent.ID, token: admin}).Code)
	assert.Equal(t, http.StatusConflict, api.do(request{method: http.MethodDelete, path: "/game-systems/" + gs.ID, token: admin}).Code)

	rec = api.do(request{method: http.MethodPatch, path: "/factions/" + child.ID, token: admin, body: map[string]any{"parentId": ""}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[factionResponse](t, rec).ParentID)

	assert.Equal(t, http.StatusNoContent, api.do(request{method: http.MethodDelete, path: "/factions/" + parent.ID, token: admin}).Code)
}

func TestCatalog_HiddenReferenceLooksMissing(t *testing.T) {
	api := newTestAPI(t)
	owner, _ := api.register("ada")
	other, _ := api.register("bob")

	_, hidden := api.createGameSystem(owner, "Hidden", "private")

	createFaction := func(systemID string) *httptest.ResponseRecorder {
		return api.do(request{method: http.MethodPost, path: "/factions", token: other, body: map[string]any{
			"name":         "Orks",
			"gameSystemId": systemID,
		}})
	}
	missing := createFaction("does-not-exist")
	require.Equal(t, http.StatusUnprocessableEntity, missing.Code, missing.Body.String())

	rec := createFaction(hidden.ID)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, missing.Body.String(), rec.Body.String())

	assert.Equal(t, http.StatusNoContent, api.do(request{method: http.MethodDelete, path: "/game-systems/" + hidden.ID, token: owner}).Code)
}

func (api *testAPI) uploadArtwork(token, path string, data []byte, contentType string) *httptest.ResponseRecorder {
	api.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="art"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(api.t, err)
	_, err = part.Write(data)
	require.NoError(api.t, err)
	require.NoError(api.t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func TestCatalog_Artwork(t *testing.T) {
	api := newTestAPI(t)
	owner, _ := api.register("ada")
	other, _ := api.register("bob")
	_, gs := api.createGameSystem(owner, "Mine", "private")

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 32)...)

	rec := api.do(request{method: http.MethodGet, path: "/game-systems/" + gs.ID + "/artwork", token: owner})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.uploadArtwork(other, "/game-systems/"+gs.ID+"/artwork", png, "image/png")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.uploadArtwork(owner, "/game-systems/"+gs.ID+"/artwork", png, "image/jpeg")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.uploadArtwork(owner, "/game-systems/"+gs.ID+"/artwork", png, "image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[gameSystemResponse](t, rec).HasArtwork)

	key := "artwork/game-systems/" + gs.ID + ".png"
	assert.Equal(t, png, api.objects.objects[key])

	rec = api.do(request{method: http.MethodGet, path: "/game-systems/" + gs.ID + "/artwork", token: owner})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://objects.test/`+key+`?ttl=900"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","cache":"error"},"environment":"test"}`, rec.Body.String())
}
