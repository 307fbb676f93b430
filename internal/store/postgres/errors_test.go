package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/store"
)

func TestMapError(t *testing.T) {
	plain := errors.New("boom")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "sales_tenant_idempotency"}, store.ErrDuplicateKey},
		{"serialization", fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure}), store.ErrWriteConflict},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, store.ErrWriteConflict},
		{"check", &pgconn.PgError{Code: codeCheckViolation}, store.ErrWriteConflict},
		{"other pg", &pgconn.PgError{Code: "42P01"}, nil},
		{"plain", plain, plain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.in)
			require.Error(t, got)
			if tc.want != nil {
				assert.ErrorIs(t, got, tc.want)
			}
		})
	}

	assert.NoError(t, mapError(nil))
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(mapError(&pgconn.PgError{Code: codeSerializationFailure}), &pgErr), "driver error stays in the chain")
}
