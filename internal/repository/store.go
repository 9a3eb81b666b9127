package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/authsvc/internal/model"
)

// postgresRepos は1つのDBTXに束ねたリポジトリ群。
type postgresRepos struct {
	users   *PostgresUserRepo
	verify  *PostgresOneTimeTokenRepo
	reset   *PostgresOneTimeTokenRepo
	refresh *PostgresRefreshTokenRepo
	history *PostgresLoginHistoryRepo
}

func newPostgresRepos(db DBTX) *postgresRepos {
	return &postgresRepos{
		users:   NewPostgresUserRepo(db),
		verify:  NewPostgresOneTimeTokenRepo(db, model.TokenKindVerification),
		reset:   NewPostgresOneTimeTokenRepo(db, model.TokenKindPasswordReset),
		refresh: NewPostgresRefreshTokenRepo(db),
		history: NewPostgresLoginHistoryRepo(db),
	}
}

func (p *postgresRepos) Users() UserRepository { return p.users }
func (p *postgresRepos) VerificationTokens() OneTimeTokenRepository { return p.verify }
func (p *postgresRepos) ResetTokens() OneTimeTokenRepository { return p.reset }
func (p *postgresRepos) RefreshTokens() RefreshTokenRepository { return p.refresh }
func (p *postgresRepos) LoginHistory() LoginHistoryRepository { return p.history }

// PostgresStore はPostgreSQLを使用したStore実装。
type PostgresStore struct {
	*postgresRepos
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		postgresRepos: newPostgresRepos(db),
		db:            db,
	}
}

// WithTx はfnを1つのトランザクション内で実行する。
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, newPostgresRepos(tx))
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
