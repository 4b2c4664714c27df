package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muster/api/internal/models"
)

const tokenColumns = `t.id, t.user_id, t.token_hash, t.type, t.expires_at, t.is_revoked, t.created_at`

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token models.Token) error {
	const query = `
		INSERT INTO tokens (id, user_id, token_hash, type, expires_at, is_revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Hash,
		token.Type,
		token.ExpiresAt,
		token.IsRevoked,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", classifyWrite(err))
	}
	return nil
}

// FindByHash returns the token stored under hash together with its owner.
func (r *TokenRepository) FindByHash(ctx context.Context, hash []byte) (models.Token, models.User, error) {
	const query = `
		SELECT ` + tokenColumns + `,
		       u.id, u.display_name, u.roles, u.is_active, u.created_at, u.updated_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`

	var (
		token models.Token
		user  models.User
		roles int16
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&token.ID,
		&token.UserID,
		&token.Hash,
		&token.Type,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
		&user.ID,
		&user.DisplayName,
		&roles,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Token{}, models.User{}, ErrTokenNotFound
		}
		return models.Token{}, models.User{}, err
	}
	user.Roles = models.Roles(roles)
	return token, user, nil
}

func (r *TokenRepository) GetByID(ctx context.Context, id string) (models.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens t WHERE t.id = $1`

	token, err := scanToken(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Token{}, ErrTokenNotFound
		}
		return models.Token{}, err
	}
	return token, nil
}

// SetRevoked marks a token revoked. Revoking an already revoked token succeeds.
func (r *TokenRepository) SetRevoked(ctx context.Context, id string) error {
	const query = `
		UPDATE tokens
		SET is_revoked = TRUE, revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) ListByUser(ctx context.Context, userID string) ([]models.Token, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM tokens t
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC
	`
	return queryTokens(ctx, r.db, query, userID)
}

// RevokeAllForUser revokes every live token of the user in one statement and
// returns the tokens it revoked.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) ([]models.Token, error) {
	return revokeAllForUser(ctx, r.db, userID)
}

func revokeAllForUser(ctx context.Context, db DBTX, userID string) ([]models.Token, error) {
	const query = `
		UPDATE tokens t
		SET is_revoked = TRUE, revoked_at = NOW()
		WHERE t.user_id = $1 AND NOT t.is_revoked
		RETURNING ` + tokenColumns
	return queryTokens(ctx, db, query, userID)
}

// DeleteExpired removes tokens that expired, or were revoked, before the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM tokens
		WHERE expires_at < $1 OR (is_revoked AND revoked_at < $1)
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryTokens(ctx context.Context, db DBTX, query string, args ...any) ([]models.Token, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func scanToken(row rowScanner) (models.Token, error) {
	var token models.Token
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Hash,
		&token.Type,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
	)
	return token, err
}
