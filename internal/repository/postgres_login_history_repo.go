package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/authsvc/internal/model"
)

// PostgresLoginHistoryRepo はPostgreSQLを使用したログイン履歴リポジトリ。
type PostgresLoginHistoryRepo struct {
	db DBTX
}

// NewPostgresLoginHistoryRepo はPostgresLoginHistoryRepoを生成する。
func NewPostgresLoginHistoryRepo(db DBTX) *PostgresLoginHistoryRepo {
	return &PostgresLoginHistoryRepo{db: db}
}

// FindLatestFromOtherIP はipと異なるIPからの直近のログインを返す。
func (r *PostgresLoginHistoryRepo) FindLatestFromOtherIP(ctx context.Context, userID, ip string) (*model.LoginHistory, error) {
	h := &model.LoginHistory{}
	var ua sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, ip_address, user_agent, login_at, was_notified
		 FROM login_history
		 WHERE user_id = $1 AND ip_address <> $2
		 ORDER BY login_at DESC
		 LIMIT 1`,
		userID, ip,
	).Scan(&h.ID, &h.UserID, &h.IPAddress, &ua, &h.LoginAt, &h.WasNotified)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest login from other IP: %w", err)
	}
	h.UserAgent = ua.String
	return h, nil
}

// Create はログイン履歴を追加する。
// DBが丸めた login_at を entry.LoginAt に書き戻す。
func (r *PostgresLoginHistoryRepo) Create(ctx context.Context, entry *model.LoginHistory) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO login_history (id, user_id, ip_address, user_agent, login_at, was_notified)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING login_at`,
		entry.ID, entry.UserID, entry.IPAddress, nullIfEmpty(entry.UserAgent), entry.LoginAt, entry.WasNotified,
	).Scan(&entry.LoginAt)
	if err != nil {
		return fmt.Errorf("failed to create login history: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LoginHistoryRepository = (*PostgresLoginHistoryRepo)(nil)
