package db

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_EmptyDSN(t *testing.T) {
	_, err := Connect(context.Background(), "", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database_url configured")
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}

func TestIsForeignKeyViolation(t *testing.T) {
	err := fmt.Errorf("insert filing: %w", &pgconn.PgError{Code: "23503"})
	assert.True(t, IsForeignKeyViolation(err))
	assert.False(t, IsConnectionLoss(err))

	wrapped := eris.Wrap(&pgconn.PgError{Code: "23505"}, "insert filing")
	assert.False(t, IsForeignKeyViolation(wrapped))
	assert.False(t, IsForeignKeyViolation(errors.New("23503")))
}

func TestIsConnectionLoss(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"admin shutdown class 08", &pgconn.PgError{Code: "08006"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"tx closed", pgx.ErrTxClosed, false},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"closed pool", errors.New("closed pool"), true},
		{"plain", errors.New("value too long"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionLoss(tt.err))
		})
	}
}
