package service

import (
	"context"
	"time"

	"muster/api/internal/models"
)

type UserStore interface {
	CreateWithCredential(ctx context.Context, user models.User, credential models.Credential) error
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	// UpdateAndRevokeTokens saves user and revokes its live tokens
	// atomically, returning the revoked tokens.
	UpdateAndRevokeTokens(ctx context.Context, user models.User) ([]models.Token, error)
	FindCredential(ctx context.Context, credType models.CredentialType, identifier string) (models.Credential, models.User, error)
}

type TokenStore interface {
	Create(ctx context.Context, token models.Token) error
	FindByHash(ctx context.Context, hash []byte) (models.Token, models.User, error)
	GetByID(ctx context.Context, id string) (models.Token, error)
	SetRevoked(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) ([]models.Token, error)
}

// TokenPurger removes tokens that can no longer authenticate.
type TokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type CatalogStore[M models.CatalogItem] interface {
	Get(ctx context.Context, id string) (M, error)
	List(ctx context.Context, filter models.ReadFilter) ([]M, error)
	Create(ctx context.Context, item M) error
	Update(ctx context.Context, item M) error
	Delete(ctx context.Context, id string) error
}
