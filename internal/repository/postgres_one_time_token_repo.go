package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/authsvc/internal/model"
)

// tokenTables はトークン種別ごとの格納テーブル。
var tokenTables = map[model.TokenKind]string{
	model.TokenKindVerification:  "email_verification_tokens",
	model.TokenKindPasswordReset: "password_reset_tokens",
}

// PostgresOneTimeTokenRepo はPostgreSQLを使用したワンタイムトークンリポジトリ。
// 種別ごとに別テーブルを使うが、スキーマとSQLは共通。
type PostgresOneTimeTokenRepo struct {
	db    DBTX
	kind  model.TokenKind
	table string
}

// NewPostgresOneTimeTokenRepo は指定種別のPostgresOneTimeTokenRepoを生成する。
// 未知の種別はプログラミングエラーとしてpanicする。
func NewPostgresOneTimeTokenRepo(db DBTX, kind model.TokenKind) *PostgresOneTimeTokenRepo {
	table, ok := tokenTables[kind]
	if !ok {
		panic(fmt.Sprintf("repository: unknown token kind %q", kind))
	}
	return &PostgresOneTimeTokenRepo{db: db, kind: kind, table: table}
}

// Create はトークンを作成する。
func (r *PostgresOneTimeTokenRepo) Create(ctx context.Context, token *model.OneTimeToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, user_id, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s token: %w", r.kind, err)
	}
	return nil
}

// Consume は有効なトークンを1文のDELETEで引き換える。
// 同じトークンで並行に呼ばれても、行を受け取れるのは1つだけ。
func (r *PostgresOneTimeTokenRepo) Consume(ctx context.Context, token string, now time.Time) (*model.OneTimeToken, error) {
	t := &model.OneTimeToken{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM `+r.table+`
		 WHERE token = $1 AND expires_at > $2
		 RETURNING id, user_id, token, expires_at, created_at`,
		token, now,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s token: %w", r.kind, err)
	}
	return t, nil
}

// DeleteByUserID は指定ユーザーのトークンを全て削除する。
func (r *PostgresOneTimeTokenRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s tokens: %w", r.kind, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ OneTimeTokenRepository = (*PostgresOneTimeTokenRepo)(nil)
