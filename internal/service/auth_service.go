package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"muster/api/internal/ids"
	"muster/api/internal/models"
	"muster/api/internal/repository"
	"muster/api/internal/security"
)

type AuthService struct {
	users    UserStore
	tokens   TokenStore
	issuer   *TokenService
	password security.Argon2Params
	log      zerolog.Logger
}

func NewAuthService(users UserStore, tokens TokenStore, issuer *TokenService, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		issuer:   issuer,
		password: security.DefaultArgon2Params,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// WithPasswordParams overrides the argon2id cost used for new credentials.
func (s *AuthService) WithPasswordParams(params security.Argon2Params) *AuthService {
	s.password = params
	return s
}

type RegisterInput struct {
	Username    string
	Password    string
	DisplayName string
}

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

// Register creates an active hobbyist with a password credential and
// signs them in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	username := normalizeUsername(input.Username)
	if username == "" || input.Password == "" {
		return AuthResult{}, validationError("username and password required")
	}
	if strings.ContainsRune(username, ':') {
		return AuthResult{}, validationError("username must not contain ':'")
	}

	secretHash, err := security.HashPasswordWithParams(input.Password, s.password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.issuer.Now().UTC()
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user := models.User{
		ID:          ids.New(),
		DisplayName: displayName,
		Roles:       models.NewRoles(models.RoleHobbyist),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	credential := models.Credential{
		ID:         ids.New(),
		UserID:     user.ID,
		Type:       models.CredentialPassword,
		Identifier: username,
		SecretHash: secretHash,
		CreatedAt:  now,
	}

	if err := s.users.CreateWithCredential(ctx, user, credential); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthResult{}, fmt.Errorf("%w: username already registered", ErrConflict)
		}
		return AuthResult{}, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("user registered")

	return s.signIn(ctx, user)
}

// Login checks a username and password and issues a new access token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	credential, user, err := s.users.FindCredential(ctx, models.CredentialPassword, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(password, credential.SecretHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return AuthResult{}, ErrUserSuspended
	}

	return s.signIn(ctx, user)
}

func (s *AuthService) signIn(ctx context.Context, user models.User) (AuthResult, error) {
	raw, token, err := s.issuer.Issue(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken: raw,
		ExpiresAt:   token.ExpiresAt,
		User:        user,
	}, nil
}

// Logout revokes the token the identity authenticated with.
func (s *AuthService) Logout(ctx context.Context, identity models.Identity) error {
	token, err := s.tokens.GetByID(ctx, identity.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	return s.issuer.Revoke(ctx, token)
}

// RevokeSessions signs the identity's user out everywhere.
func (s *AuthService) RevokeSessions(ctx context.Context, identity models.Identity) (int, error) {
	return s.issuer.RevokeAllActiveTokens(ctx, identity.UserID)
}
