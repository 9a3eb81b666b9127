package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/authsvc/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db DBTX
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db DBTX) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Create はリフレッシュトークンを作成する。
func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.UserID, token.Token, token.ExpiresAt,
		nullIfEmpty(token.IPAddress), nullIfEmpty(token.UserAgent), token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// Consume は有効なリフレッシュトークンを削除して返す。
// ローテーション済みのトークンは既に行が無いため、再提示はnilになる。
func (r *PostgresRefreshTokenRepo) Consume(ctx context.Context, token string, now time.Time) (*model.RefreshToken, error) {
	t := &model.RefreshToken{}
	var ip, ua sql.NullString
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE token = $1 AND expires_at > $2
		 RETURNING id, user_id, token, expires_at, ip_address, user_agent, created_at`,
		token, now,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &ip, &ua, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	t.IPAddress = ip.String
	t.UserAgent = ua.String
	return t, nil
}

// DeleteByToken はトークン文字列に一致する行を削除する。
func (r *PostgresRefreshTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーのリフレッシュトークンを全て削除する。
func (r *PostgresRefreshTokenRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
