package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: bonus_payouts.bonus_tracker_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection reset")))
}

func TestIsRetryableTxErr(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		assert.True(t, IsRetryableTxErr(fmt.Errorf("tx: %w", &pgconn.PgError{Code: code})), code)
	}
	assert.False(t, IsRetryableTxErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryableTxErr(errors.New("deadlock detected")))
	assert.False(t, IsRetryableTxErr(nil))
}
