package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/authsvc/internal/model"
)

// uniqueViolation はPostgreSQLのユニーク制約違反のSQLSTATE。
const uniqueViolation = "23505"

const userColumns = `id, email, password, is_verified, last_login_at, last_login_ip, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// 同時登録でユニーク制約に違反した場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, is_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, user.IsVerified, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// MarkVerified はメールアドレス確認済みにする。
func (r *PostgresUserRepo) MarkVerified(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, "mark user verified",
		`UPDATE users SET is_verified = true, updated_at = $2 WHERE id = $1`,
		id, at,
	)
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return r.updateOne(ctx, "update password",
		`UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, at,
	)
}

// UpdateLastLogin は最終ログイン日時とIPを更新する。
func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id, ip string, at time.Time) error {
	return r.updateOne(ctx, "update last login",
		`UPDATE users SET last_login_at = $2, last_login_ip = $3, updated_at = $2 WHERE id = $1`,
		id, at, ip,
	)
}

// updateOne は1行を更新するUPDATEを実行する。対象が無い場合はエラーを返す。
func (r *PostgresUserRepo) updateOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to %s: user not found: %v", op, args[0])
	}
	return nil
}

// scanUser は1行をmodel.Userに読み込む。行が無い場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var lastLoginAt sql.NullTime
	var lastLoginIP sql.NullString

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.IsVerified,
		&lastLoginAt, &lastLoginIP, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	if lastLoginIP.Valid {
		user.LastLoginIP = &lastLoginIP.String
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
