package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"muster/api/internal/models"
	"muster/api/internal/security"
)

const (
	userKeyPrefix  = "auth:user:"
	tokenKeyPrefix = "auth:token:"

	checksumVersion = "v1"
)

// UserKey addresses the cached identity of a presented token.
func UserKey(rawToken string) string {
	return userKeyPrefix + rawToken
}

// TokenKey maps a token hash back to the raw token so revocation, which only
// knows the hash, can find the identity entry.
func TokenKey(hashEncoded string) string {
	return tokenKeyPrefix + hashEncoded
}

// CachedIdentity is the JSON document stored under UserKey.
type CachedIdentity struct {
	UserID   string       `json:"userId"`
	Roles    models.Roles `json:"roles"`
	IsActive bool         `json:"isActive"`
	TokenID  string       `json:"tokenId"`
	Checksum string       `json:"checksum"`
}

func checksumParts(id models.Identity) []string {
	return []string{
		checksumVersion,
		id.UserID,
		strconv.Itoa(int(id.Roles)),
		strconv.FormatBool(id.IsActive),
		id.TokenID,
	}
}

// AuthCache is a cache-aside store of authenticated identities. It never
// returns backend failures: reads degrade to a miss, writes and deletes to a
// logged no-op.
type AuthCache struct {
	backend Backend
	secret  string
	log     zerolog.Logger
}

func NewAuthCache(backend Backend, checksumSecret string, log zerolog.Logger) *AuthCache {
	return &AuthCache{
		backend: backend,
		secret:  checksumSecret,
		log:     log.With().Str("component", "auth_cache").Logger(),
	}
}

// Cache stores identity for rawToken for ttl, rounded down to whole seconds.
// A ttl under one second is not cached at all.
func (c *AuthCache) Cache(ctx context.Context, rawToken string, hashEncoded string, identity models.Identity, ttl time.Duration) {
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		c.log.Debug().Str("token_id", identity.TokenID).Msg("token too close to expiry, not cached")
		return
	}

	entry := CachedIdentity{
		UserID:   identity.UserID,
		Roles:    identity.Roles,
		IsActive: identity.IsActive,
		TokenID:  identity.TokenID,
		Checksum: security.Checksum(c.secret, checksumParts(identity)...),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("token_id", identity.TokenID).Msg("encode cached identity failed")
		return
	}

	// The reverse mapping goes first: an identity entry must always be
	// reachable from the token hash.
	if err := c.backend.Set(ctx, TokenKey(hashEncoded), []byte(rawToken), ttl); err != nil {
		c.log.Warn().Err(err).Str("token_id", identity.TokenID).Msg("cache token key failed")
		return
	}
	if err := c.backend.Set(ctx, UserKey(rawToken), payload, ttl); err != nil {
		c.log.Warn().Err(err).Str("token_id", identity.TokenID).Msg("cache identity failed")
		if err := c.backend.Del(ctx, TokenKey(hashEncoded)); err != nil {
			c.log.Warn().Err(err).Str("token_id", identity.TokenID).Msg("drop orphaned token key failed")
		}
	}
}

// Lookup returns the identity cached for rawToken. Misses, backend errors,
// undecodable entries and checksum mismatches all report false.
func (c *AuthCache) Lookup(ctx context.Context, rawToken string) (models.Identity, bool) {
	payload, err := c.backend.Get(ctx, UserKey(rawToken))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn().Err(err).Msg("cache lookup failed")
		}
		return models.Identity{}, false
	}

	var entry CachedIdentity
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.log.Warn().Err(err).Msg("undecodable cached identity discarded")
		c.discard(ctx, rawToken)
		return models.Identity{}, false
	}

	identity := models.Identity{
		UserID:   entry.UserID,
		Roles:    entry.Roles,
		IsActive: entry.IsActive,
		TokenID:  entry.TokenID,
	}
	if !security.VerifyChecksum(c.secret, entry.Checksum, checksumParts(identity)...) {
		c.log.Warn().Str("user_id", entry.UserID).Str("token_id", entry.TokenID).Msg("cached identity checksum mismatch")
		c.discard(ctx, rawToken)
		return models.Identity{}, false
	}

	return identity, true
}

// Invalidate removes both entries of the token with the given hash. An
// absent reverse mapping means there is nothing to clear.
func (c *AuthCache) Invalidate(ctx context.Context, hashEncoded string) {
	raw, err := c.backend.Get(ctx, TokenKey(hashEncoded))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn().Err(err).Msg("cache invalidate lookup failed")
		}
		return
	}

	if err := c.backend.Del(ctx, UserKey(string(raw)), TokenKey(hashEncoded)); err != nil {
		c.log.Warn().Err(err).Msg("cache invalidate failed")
	}
}

func (c *AuthCache) discard(ctx context.Context, rawToken string) {
	if err := c.backend.Del(ctx, UserKey(rawToken)); err != nil {
		c.log.Warn().Err(err).Msg("discard cached identity failed")
	}
}
