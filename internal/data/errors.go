package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	ErrPrincipalIDRequired = errors.New("principal id is required")
	ErrIdentityKeyRequired = errors.New("identity provider and subject are required")
)

// Constraint names from migrations/0001_principals.sql.
const (
	constraintPrincipalEmail = "principals_email_key"
	constraintIdentityOwner  = "external_identities_principal_id_fkey"
)

// pgError returns the Postgres error with code, if err carries one.
func pgError(err error, code string) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error, constraint string) bool {
	pgErr, ok := pgError(err, pgerrcode.UniqueViolation)
	return ok && pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error, constraint string) bool {
	pgErr, ok := pgError(err, pgerrcode.ForeignKeyViolation)
	return ok && pgErr.ConstraintName == constraint
}
