package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"muster/api/internal/models"
)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateWithCredential inserts the user and its login credential atomically.
func (r *UserRepository) CreateWithCredential(ctx context.Context, user models.User, credential models.Credential) error {
	const insertUser = `
		INSERT INTO users (id, display_name, roles, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	const insertCredential = `
		INSERT INTO credentials (id, user_id, type, identifier, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertUser,
		user.ID,
		user.DisplayName,
		int16(user.Roles),
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert user: %w", classifyWrite(err))
	}

	if _, err := tx.ExecContext(ctx, insertCredential,
		credential.ID,
		credential.UserID,
		credential.Type,
		credential.Identifier,
		credential.SecretHash,
		credential.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert credential: %w", classifyWrite(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `
		SELECT id, display_name, roles, is_active, created_at, updated_at
		FROM users WHERE id = $1
	`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user models.User) error {
	return updateUser(ctx, r.db, user)
}

// UpdateAndRevokeTokens saves the user and revokes all of its live tokens in
// one transaction. It returns the revoked tokens.
func (r *UserRepository) UpdateAndRevokeTokens(ctx context.Context, user models.User) ([]models.Token, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateUser(ctx, tx, user); err != nil {
		return nil, err
	}
	revoked, err := revokeAllForUser(ctx, tx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("revoke tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return revoked, nil
}

func updateUser(ctx context.Context, db DBTX, user models.User) error {
	const query = `
		UPDATE users
		SET display_name = $2, roles = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := db.ExecContext(ctx, query, user.ID, user.DisplayName, int16(user.Roles), user.IsActive, user.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindCredential looks up a credential and its owning user.
func (r *UserRepository) FindCredential(ctx context.Context, credType models.CredentialType, identifier string) (models.Credential, models.User, error) {
	const query = `
		SELECT c.id, c.user_id, c.type, c.identifier, c.secret_hash, c.created_at,
		       u.id, u.display_name, u.roles, u.is_active, u.created_at, u.updated_at
		FROM credentials c
		JOIN users u ON u.id = c.user_id
		WHERE c.type = $1 AND c.identifier = $2
	`

	var (
		credential models.Credential
		user       models.User
		roles      int16
	)
	err := r.db.QueryRowContext(ctx, query, credType, identifier).Scan(
		&credential.ID,
		&credential.UserID,
		&credential.Type,
		&credential.Identifier,
		&credential.SecretHash,
		&credential.CreatedAt,
		&user.ID,
		&user.DisplayName,
		&roles,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Credential{}, models.User{}, ErrCredentialNotFound
		}
		return models.Credential{}, models.User{}, err
	}
	user.Roles = models.Roles(roles)
	return credential, user, nil
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user  models.User
		roles int16
	)
	if err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&roles,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, err
	}
	user.Roles = models.Roles(roles)
	return user, nil
}
