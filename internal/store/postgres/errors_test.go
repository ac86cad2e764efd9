package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/leadpool/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{
			name:     "duplicate lead",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: leadsOwnerCompanyKey},
			sentinel: store.ErrLeadExists,
		},
		{
			name:     "other unique violation",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "companies_pkey"},
			contains: "unique constraint violation: companies_pkey",
		},
		{
			name:     "lead for missing company",
			err:      &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: leadsCompanyFKey},
			sentinel: store.ErrCompanyNotFound,
		},
		{
			name:     "deadlock",
			err:      &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			contains: "transaction conflict (retryable)",
		},
		{
			name:     "connection failure",
			err:      &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			contains: "database connection error",
		},
		{
			name:     "unknown code",
			err:      &pgconn.PgError{Code: "XX000", Message: "internal"},
			contains: "postgres error [XX000]: internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapPostgresError(tt.err)
			require.Error(t, mapped)
			if tt.sentinel != nil {
				require.ErrorIs(t, mapped, tt.sentinel)
			}
			if tt.contains != "" {
				require.Contains(t, mapped.Error(), tt.contains)
			}
		})
	}
}

func TestMapPostgresError_passthrough(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("plain")
	require.Same(t, plain, mapPostgresError(plain))
}
