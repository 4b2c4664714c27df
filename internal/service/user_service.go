package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"muster/api/internal/models"
)

type UserService struct {
	users  UserStore
	issuer *TokenService
	log    zerolog.Logger
}

func NewUserService(users UserStore, issuer *TokenService, log zerolog.Logger) *UserService {
	return &UserService{
		users:  users,
		issuer: issuer,
		log:    log.With().Str("component", "user_service").Logger(),
	}
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, translateStoreError(err)
	}
	return user, nil
}

// UserPatch carries the fields an admin may change. Nil means unchanged.
type UserPatch struct {
	Roles       *models.Roles
	IsActive    *bool
	DisplayName *string
}

// Patch applies an admin edit to a user. A change of roles or activity
// revokes every live token of the user in the same transaction; patches
// that leave both as they were revoke nothing.
func (s *UserService) Patch(ctx context.Context, actor models.Identity, id string, patch UserPatch) (models.User, error) {
	if !actor.IsAdmin() {
		return models.User{}, ErrForbidden
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, translateStoreError(err)
	}

	changed := false
	if patch.Roles != nil {
		if !patch.Roles.Valid() {
			return models.User{}, validationError("unknown role")
		}
		if *patch.Roles != user.Roles {
			user.Roles = *patch.Roles
			changed = true
		}
	}
	if patch.IsActive != nil && *patch.IsActive != user.IsActive {
		user.IsActive = *patch.IsActive
		changed = true
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return models.User{}, validationError("displayName must not be empty")
		}
		user.DisplayName = name
	}

	user.UpdatedAt = s.issuer.Now().UTC()
	if !changed {
		if err := s.users.Update(ctx, user); err != nil {
			return models.User{}, translateStoreError(err)
		}
		return user, nil
	}

	// The access change and the revocation commit together: a failure
	// leaves the old roles in place and a retry still sees the change.
	revoked, err := s.users.UpdateAndRevokeTokens(ctx, user)
	if err != nil {
		return models.User{}, translateStoreError(err)
	}
	s.issuer.InvalidateCached(ctx, revoked)

	s.log.Info().
		Str("user_id", user.ID).
		Str("actor_id", actor.UserID).
		Str("roles", user.Roles.String()).
		Bool("is_active", user.IsActive).
		Int("revoked", len(revoked)).
		Msg("user access changed")
	return user, nil
}
