package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_WithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified = true`)).
		WithArgs("u-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Repositories) error {
		return tx.Users().MarkVerified(ctx, "u-1", now)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresStore(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Repositories) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(ctx context.Context, tx Repositories) error {
			panic("unexpected")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_CommitFailureIsReturned(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Repositories) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}
