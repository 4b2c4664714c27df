package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"muster/api/internal/cache"
	"muster/api/internal/config"
	"muster/api/internal/ids"
	"muster/api/internal/models"
	"muster/api/internal/security"
)

type TokenService struct {
	tokens     TokenStore
	cache      *cache.AuthCache
	ttl        time.Duration
	tokenBytes int
	now        func() time.Time
	log        zerolog.Logger
}

func NewTokenService(tokens TokenStore, authCache *cache.AuthCache, cfg config.SecurityConfig, log zerolog.Logger) *TokenService {
	return &TokenService{
		tokens:     tokens,
		cache:      authCache,
		ttl:        cfg.AccessTokenTTL,
		tokenBytes: cfg.TokenBytes,
		now:        time.Now,
		log:        log.With().Str("component", "token_service").Logger(),
	}
}

// WithClock replaces the clock. Call it before the service is shared.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) Now() time.Time {
	return s.now()
}

func (s *TokenService) IsValid(token models.Token) bool {
	return token.Valid(s.now())
}

// Issue creates and persists a new access token for userID. The raw token
// is returned to hand to the client and is not kept anywhere.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, models.Token, error) {
	raw, hash, err := security.GenerateToken(s.tokenBytes)
	if err != nil {
		return "", models.Token{}, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	token := models.Token{
		ID:        ids.New(),
		UserID:    userID,
		Hash:      hash,
		Type:      models.TokenAccess,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", models.Token{}, fmt.Errorf("persist token: %w", err)
	}
	return raw, token, nil
}

// Revoke marks the token revoked and clears its cached identity. Revoking
// a revoked token only repeats the cache invalidation.
func (s *TokenService) Revoke(ctx context.Context, token models.Token) error {
	if !token.IsRevoked {
		if err := s.tokens.SetRevoked(ctx, token.ID); err != nil {
			return translateStoreError(err)
		}
	}
	s.cache.Invalidate(ctx, security.EncodeHash(token.Hash))
	return nil
}

// RevokeAllActiveTokens revokes every live token of the user. Tokens issued
// while the bulk update runs may survive it.
func (s *TokenService) RevokeAllActiveTokens(ctx context.Context, userID string) (int, error) {
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	s.InvalidateCached(ctx, revoked)
	s.log.Info().Str("user_id", userID).Int("count", len(revoked)).Msg("revoked active tokens")
	return len(revoked), nil
}

// InvalidateCached drops the cached identities of tokens that were revoked
// elsewhere, e.g. in a transaction with a user update.
func (s *TokenService) InvalidateCached(ctx context.Context, tokens []models.Token) {
	for _, token := range tokens {
		s.cache.Invalidate(ctx, security.EncodeHash(token.Hash))
	}
}
