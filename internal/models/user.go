package models

import "time"

type User struct {
	ID          string
	DisplayName string
	Roles       Roles
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CredentialType string

const CredentialPassword CredentialType = "password"

// Credential binds a login identifier to a user. (Type, Identifier) is unique.
type Credential struct {
	ID         string
	UserID     string
	Type       CredentialType
	Identifier string
	SecretHash string
	CreatedAt  time.Time
}

type TokenType string

const TokenAccess TokenType = "access"

// Token is a persisted bearer token. Only the hash of the secret is stored.
type Token struct {
	ID        string
	UserID    string
	Hash      []byte
	Type      TokenType
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// Valid reports whether the token can still authenticate at now.
func (t Token) Valid(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// Identity is the authenticated actor attached to a request.
type Identity struct {
	UserID   string
	Roles    Roles
	IsActive bool
	TokenID  string
}

func (i Identity) IsAdmin() bool {
	return i.Roles.Has(RoleAdmin)
}
