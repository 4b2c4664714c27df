package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muster/api/internal/models"
	"muster/api/internal/service"
)

func ptr[T any](v T) *T { return &v }

func TestUserPatch_RoleChangeRevokesTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin, _ := h.userWithRoles(t, "root", models.RoleAdmin)
	target := h.register(t, "ada")

	_, ok, err := h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, h.memory.Keys())

	roles := models.NewRoles(models.RoleHobbyist, models.RoleCataloguer)
	user, err := h.users.Patch(ctx, admin, target.User.ID, service.UserPatch{Roles: &roles})
	require.NoError(t, err)
	assert.Equal(t, roles, user.Roles)

	_, ok, err = h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "tokens issued before the role change stop working")

	res, err := h.auth.Login(ctx, "ada", "password-ada")
	require.NoError(t, err)
	identity, ok, err := h.authn.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, identity.Roles.Has(models.RoleCataloguer))
}

func TestUserPatch_DeactivateRevokesTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin, _ := h.userWithRoles(t, "root", models.RoleAdmin)
	target := h.register(t, "ada")

	_, err := h.users.Patch(ctx, admin, target.User.ID, service.UserPatch{IsActive: ptr(false)})
	require.NoError(t, err)

	_, ok, err := h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.auth.Login(ctx, "ada", "password-ada")
	assert.ErrorIs(t, err, service.ErrUserSuspended)
}

func TestUserPatch_NoOpKeepsTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin, _ := h.userWithRoles(t, "root", models.RoleAdmin)
	target := h.register(t, "ada")

	same := target.User.Roles
	user, err := h.users.Patch(ctx, admin, target.User.ID, service.UserPatch{
		Roles:       &same,
		IsActive:    ptr(true),
		DisplayName: ptr("Countess"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Countess", user.DisplayName)

	_, ok, err := h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	assert.True(t, ok, "unchanged roles and activity must not revoke sessions")
}

// brokenRevocation fails the combined update and revocation the given
// number of times before delegating.
type brokenRevocation struct {
	service.UserStore
	failures int
}

var errRevocationDown = errors.New("revocation down")

func (b *brokenRevocation) UpdateAndRevokeTokens(ctx context.Context, user models.User) ([]models.Token, error) {
	if b.failures > 0 {
		b.failures--
		return nil, errRevocationDown
	}
	return b.UserStore.UpdateAndRevokeTokens(ctx, user)
}

func TestUserPatch_FailedRevocationCanBeRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin, _ := h.userWithRoles(t, "root", models.RoleAdmin)
	target := h.register(t, "ada")
	users := service.NewUserService(&brokenRevocation{UserStore: h.store.Users(), failures: 1}, h.tokens, zerolog.Nop())

	_, ok, err := h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)

	roles := models.NewRoles(models.RoleCataloguer)
	_, err = users.Patch(ctx, admin, target.User.ID, service.UserPatch{Roles: &roles})
	require.ErrorIs(t, err, errRevocationDown)

	stored, err := h.store.Users().GetByID(ctx, target.User.ID)
	require.NoError(t, err)
	assert.Equal(t, target.User.Roles, stored.Roles, "roles stay as they were when revocation fails")
	_, ok, err = h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := users.Patch(ctx, admin, target.User.ID, service.UserPatch{Roles: &roles})
	require.NoError(t, err)
	assert.Equal(t, roles, user.Roles)

	_, ok, err = h.authn.Authenticate(ctx, target.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "the retry revokes tokens issued under the old roles")

	tokens, err := h.store.Tokens().ListByUser(ctx, target.User.ID)
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.True(t, tok.IsRevoked)
	}
}

func TestUserPatch_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin, _ := h.userWithRoles(t, "root", models.RoleAdmin)
	hobbyist, _ := h.userWithRoles(t, "ada", models.RoleHobbyist)

	_, err := h.users.Patch(ctx, hobbyist, admin.UserID, service.UserPatch{IsActive: ptr(false)})
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = h.users.Patch(ctx, admin, "missing", service.UserPatch{})
	assert.ErrorIs(t, err, service.ErrNotFound)

	bad := models.Roles(64)
	_, err = h.users.Patch(ctx, admin, hobbyist.UserID, service.UserPatch{Roles: &bad})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = h.users.Patch(ctx, admin, hobbyist.UserID, service.UserPatch{DisplayName: ptr("  ")})
	assert.ErrorIs(t, err, service.ErrValidation)
}
