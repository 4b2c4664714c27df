package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrItemNotFound       = errors.New("catalog item not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a restrict-on-delete foreign key still
	// has rows pointing at the record being deleted.
	ErrReferenced = errors.New("record is still referenced")
	// ErrInvalidReference is returned when a write points at a row that does
	// not exist or violates a check constraint on references.
	ErrInvalidReference = errors.New("invalid reference")
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classifyWrite maps constraint violations of INSERT/UPDATE statements.
func classifyWrite(err error) error {
	switch pgCode(err) {
	case pgerrcode.UniqueViolation:
		return ErrDuplicate
	case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation:
		return ErrInvalidReference
	}
	return err
}

// classifyDelete maps constraint violations of DELETE statements.
func classifyDelete(err error) error {
	switch pgCode(err) {
	case pgerrcode.ForeignKeyViolation, pgerrcode.RestrictViolation:
		return ErrReferenced
	}
	return err
}
