// Package repository はデータ永続化のインターフェースとPostgreSQL実装を定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/authsvc/internal/model"
)

// ErrDuplicateEmail はusers.emailのユニーク制約違反を表す。
var ErrDuplicateEmail = errors.New("email already exists")

// DBTX は*sql.DBと*sql.Txの共通部分。
// リポジトリはトランザクションの内外どちらでも同じように動作する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
	// MarkVerified はメールアドレス確認済みにする。
	MarkVerified(ctx context.Context, id string, at time.Time) error
	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	// UpdateLastLogin は最終ログイン日時とIPを更新する。
	UpdateLastLogin(ctx context.Context, id, ip string, at time.Time) error
}

// OneTimeTokenRepository は一度だけ引き換え可能なトークンの永続化インターフェース。
// 確認メール用とパスワードリセット用で同じ実装をテーブル違いで使う。
type OneTimeTokenRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, token *model.OneTimeToken) error
	// Consume はnow時点で有効なトークンを削除し、削除した行を返す。
	// 存在しない・期限切れ・引き換え済みの場合はnilを返す。
	Consume(ctx context.Context, token string, now time.Time) (*model.OneTimeToken, error)
	// DeleteByUserID は指定ユーザーのトークンを全て削除する。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを作成する。
	Create(ctx context.Context, token *model.RefreshToken) error
	// Consume はnow時点で有効なトークンを削除し、削除した行を返す。
	// 存在しない・期限切れ・ローテーション済みの場合はnilを返す。
	Consume(ctx context.Context, token string, now time.Time) (*model.RefreshToken, error)
	// DeleteByToken はトークン文字列に一致する行を削除する。存在しなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID は指定ユーザーのリフレッシュトークンを全て削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// LoginHistoryRepository はログイン履歴の永続化インターフェース。追記と検索のみ。
type LoginHistoryRepository interface {
	// FindLatestFromOtherIP はipと異なるIPからの直近のログインを返す。無い場合はnilを返す。
	FindLatestFromOtherIP(ctx context.Context, userID, ip string) (*model.LoginHistory, error)
	// Create はログイン履歴を追加し、DBに記録された login_at を entry に反映する。
	Create(ctx context.Context, entry *model.LoginHistory) error
}

// Repositories は同じDB接続（またはトランザクション）を共有するリポジトリの集合。
type Repositories interface {
	Users() UserRepository
	VerificationTokens() OneTimeTokenRepository
	ResetTokens() OneTimeTokenRepository
	RefreshTokens() RefreshTokenRepository
	LoginHistory() LoginHistoryRepository
}

// Store はRepositoriesに加え、複数の書き込みを1トランザクションで実行する手段を提供する。
type Store interface {
	Repositories
	// WithTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返すかpanicした場合はロールバックし、それ以外はコミットする。
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
