package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite locked", errors.New("database is locked"), true},
		{"sqlite busy", errors.New("SQLITE_BUSY: cannot commit"), true},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableError(tc.err))
		})
	}
}

func TestTransactionRetriesLockedDatabase(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)

	calls := 0
	err = Transaction(context.Background(), db, func(tx *gorm.DB) error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTransactionDoesNotRetryPermanentErrors(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	err = Transaction(context.Background(), db, func(tx *gorm.DB) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStatusDetectsRestart(t *testing.T) {
	s := NewStatus(logging.Discard())

	assert.False(t, s.Update(true, "run-a"))
	assert.Equal(t, "run-a", s.LastKnownRunID())

	assert.False(t, s.Update(false, ""))
	assert.False(t, s.IsRedisHealthy())
	assert.Equal(t, "run-a", s.LastKnownRunID())

	assert.True(t, s.Update(true, "run-b"))
	assert.True(t, s.IsRedisHealthy())
}

func TestNilStatusIsUnhealthy(t *testing.T) {
	var s *Status
	assert.False(t, s.IsRedisHealthy())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: entries.habit_id, entries.date")))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}

func TestLockKeyTakesAdvisoryLockOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("habits:u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = db.Transaction(func(tx *gorm.DB) error {
		return LockKey(tx, "habits:u1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeyIsNoopOnSQLite(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	err = db.Transaction(func(tx *gorm.DB) error {
		return LockKey(tx, "habits:u1")
	})
	assert.NoError(t, err)
}
