// Package cleanup は期限切れトークンと古いログイン履歴の定期削除ジョブを提供する。
// リクエスト処理は期限切れの行を存在しないものとして扱うため、
// このジョブはテーブルの肥大化を防ぐためだけに動く。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// target は1回の削除対象。
type target struct {
	name  string
	query string
	// retention がtrueの場合は保持期間を引数に取る。
	retention bool
}

var targets = []target{
	{name: "email_verification_tokens", query: `DELETE FROM email_verification_tokens WHERE expires_at <= now()`},
	{name: "password_reset_tokens", query: `DELETE FROM password_reset_tokens WHERE expires_at <= now()`},
	{name: "refresh_tokens", query: `DELETE FROM refresh_tokens WHERE expires_at <= now()`},
	{name: "login_history", query: `DELETE FROM login_history WHERE login_at < now() - $1::interval`, retention: true},
}

// Job は期限切れ行の削除ジョブ。何度実行しても結果は変わらない。
type Job struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // ログイン履歴の保持日数（デフォルト: 180）
}

// NewJob は新しいJobを生成する。retentionDaysが0以下の場合は180日。
func NewJob(db Executor, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = 180
	}
	return &Job{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は全テーブルの削除を1回実行する。
// 1つのテーブルで失敗しても残りは続行し、失敗をまとめて返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	var (
		errs  []error
		total int64
	)
	for _, t := range targets {
		var args []interface{}
		if t.retention {
			args = append(args, interval)
		}

		deleted, err := j.exec(ctx, t.query, args...)
		if err != nil {
			j.logger.Error("cleanup failed",
				slog.String("table", t.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("failed to clean up %s: %w", t.name, err))
			continue
		}
		total += deleted
		if deleted > 0 {
			j.logger.Info("expired rows deleted",
				slog.String("table", t.name),
				slog.Int64("deleted_count", deleted),
			)
		}
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_count", total),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

func (j *Job) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
