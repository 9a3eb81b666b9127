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

	"github.com/hitoshi/authsvc/internal/model"
)

func TestNewPostgresOneTimeTokenRepo_UnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPostgresOneTimeTokenRepo(nil, model.TokenKind("bogus"))
	})
}

func TestPostgresOneTimeTokenRepo_UsesTablePerKind(t *testing.T) {
	tests := []struct {
		kind  model.TokenKind
		table string
	}{
		{model.TokenKindVerification, "email_verification_tokens"},
		{model.TokenKindPasswordReset, "password_reset_tokens"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewPostgresOneTimeTokenRepo(db, tt.kind)

			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ` + tt.table + ` WHERE user_id = $1`)).
				WithArgs("u-1").
				WillReturnResult(sqlmock.NewResult(0, 2))

			n, err := repo.DeleteByUserID(context.Background(), "u-1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresOneTimeTokenRepo_Consume_ReturnsDeletedRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOneTimeTokenRepo(db, model.TokenKindVerification)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM email_verification_tokens`) + `.*` + regexp.QuoteMeta(`expires_at > $2`) + `.*RETURNING`).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
			AddRow("t-1", "u-1", "tok", now.Add(time.Hour), now))

	tok, err := repo.Consume(context.Background(), "tok", now)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "u-1", tok.UserID)
}

func TestPostgresOneTimeTokenRepo_Consume_NoRowReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOneTimeTokenRepo(db, model.TokenKindPasswordReset)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM password_reset_tokens`)).
		WithArgs("expired", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}))

	tok, err := repo.Consume(context.Background(), "expired", now)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestPostgresOneTimeTokenRepo_Create_WrapsError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOneTimeTokenRepo(db, model.TokenKindPasswordReset)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO password_reset_tokens`)).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &model.OneTimeToken{ID: "t-1", UserID: "u-1", Token: "tok", ExpiresAt: now, CreatedAt: now})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password_reset")
}

func TestPostgresRefreshTokenRepo_Consume_CarriesMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRefreshTokenRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM refresh_tokens`)).
		WithArgs("rt", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "ip_address", "user_agent", "created_at"}).
			AddRow("r-1", "u-1", "rt", now.Add(time.Hour), "203.0.113.1", "curl/8.0", now))

	tok, err := repo.Consume(context.Background(), "rt", now)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "203.0.113.1", tok.IPAddress)
	assert.Equal(t, "curl/8.0", tok.UserAgent)
}

func TestPostgresRefreshTokenRepo_Consume_NullMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRefreshTokenRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM refresh_tokens`)).
		WithArgs("rt", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "ip_address", "user_agent", "created_at"}).
			AddRow("r-1", "u-1", "rt", now.Add(time.Hour), nil, nil, now))

	tok, err := repo.Consume(context.Background(), "rt", now)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Empty(t, tok.IPAddress)
	assert.Empty(t, tok.UserAgent)
}

func TestPostgresRefreshTokenRepo_Create_EmptyMetadataStoredAsNull(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRefreshTokenRepo(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WithArgs("r-1", "u-1", "rt", now, nil, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.RefreshToken{ID: "r-1", UserID: "u-1", Token: "rt", ExpiresAt: now, CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRefreshTokenRepo_DeleteByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRefreshTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE user_id = $1`)).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteByUserID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
