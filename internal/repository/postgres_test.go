package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
)

func TestDuplicateErrorMapsConstraints(t *testing.T) {
	usernameViolation := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"}
	emailViolation := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}

	require.ErrorIs(t, duplicateError(usernameViolation), domain.ErrDuplicateUsername)
	require.ErrorIs(t, duplicateError(emailViolation), domain.ErrDuplicateEmail)
}

func TestDuplicateErrorMapsWrappedViolations(t *testing.T) {
	wrapped := fmt.Errorf("create account: %w", &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})
	require.ErrorIs(t, duplicateError(wrapped), domain.ErrDuplicateEmail)
}

func TestDuplicateErrorIgnoresOtherErrors(t *testing.T) {
	require.Nil(t, duplicateError(errors.New("connection refused")))
	require.Nil(t, duplicateError(&pgconn.PgError{Code: "23503"}))
}

func TestDuplicateErrorKeepsUnknownConstraints(t *testing.T) {
	err := duplicateError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_pkey"})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDuplicateUsername)
	require.NotErrorIs(t, err, domain.ErrDuplicateEmail)
}
