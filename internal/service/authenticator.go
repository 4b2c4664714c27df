package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"muster/api/internal/cache"
	"muster/api/internal/models"
	"muster/api/internal/repository"
	"muster/api/internal/security"
)

// Authenticator resolves bearer tokens to identities, consulting the auth
// cache before the token store.
type Authenticator struct {
	tokens TokenStore
	issuer *TokenService
	cache  *cache.AuthCache
	log    zerolog.Logger
}

func NewAuthenticator(tokens TokenStore, issuer *TokenService, authCache *cache.AuthCache, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		issuer: issuer,
		cache:  authCache,
		log:    log.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate reports the identity behind bearer. An unknown, revoked,
// expired or malformed token yields false with a nil error; only store
// failures are returned as errors.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (models.Identity, bool, error) {
	if bearer == "" {
		return models.Identity{}, false, nil
	}

	if identity, ok := a.cache.Lookup(ctx, bearer); ok {
		return a.revalidate(ctx, bearer, identity)
	}

	hash, err := security.HashToken(bearer)
	if err != nil {
		return models.Identity{}, false, nil
	}

	token, user, err := a.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return models.Identity{}, false, nil
		}
		return models.Identity{}, false, fmt.Errorf("find token: %w", err)
	}
	if !a.issuer.IsValid(token) || !user.IsActive {
		return models.Identity{}, false, nil
	}

	identity := models.Identity{
		UserID:   user.ID,
		Roles:    user.Roles,
		IsActive: user.IsActive,
		TokenID:  token.ID,
	}
	a.cache.Cache(ctx, bearer, security.EncodeHash(hash), identity, token.ExpiresAt.Sub(a.issuer.Now()))
	return identity, true, nil
}

// revalidate confirms a cached identity against the stored token, so a
// revocation whose cache invalidation failed still takes effect.
func (a *Authenticator) revalidate(ctx context.Context, bearer string, identity models.Identity) (models.Identity, bool, error) {
	token, err := a.tokens.GetByID(ctx, identity.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			a.evict(ctx, bearer)
			return models.Identity{}, false, nil
		}
		return models.Identity{}, false, fmt.Errorf("revalidate token: %w", err)
	}

	if !a.issuer.IsValid(token) || token.UserID != identity.UserID || !identity.IsActive {
		a.evict(ctx, bearer)
		return models.Identity{}, false, nil
	}
	return identity, true, nil
}

func (a *Authenticator) evict(ctx context.Context, bearer string) {
	hash, err := security.HashToken(bearer)
	if err != nil {
		return
	}
	a.log.Debug().Msg("cached identity no longer valid, evicting")
	a.cache.Invalidate(ctx, security.EncodeHash(hash))
}
