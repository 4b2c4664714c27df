package service

import (
	"errors"
	"fmt"

	"muster/api/internal/access"
	"muster/api/internal/repository"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = access.ErrForbidden
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translateStoreError maps repository errors onto the service taxonomy.
// Anything unrecognised is returned unchanged.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrTokenNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrReferenced):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrInvalidReference):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}
