// Package auth はメールアドレスとパスワードによる認証フローを提供する。
//
// 登録 → メール確認 → ログイン → リフレッシュ → ログアウト、および
// パスワードの再設定・変更を扱う。状態はストアの行の有無で表現し、
// 複数の書き込みを伴う処理はすべて1トランザクションで実行する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authsvc/internal/metrics"
	"github.com/hitoshi/authsvc/internal/model"
	"github.com/hitoshi/authsvc/internal/notify"
	"github.com/hitoshi/authsvc/internal/password"
	"github.com/hitoshi/authsvc/internal/repository"
	"github.com/hitoshi/authsvc/internal/session"
	"github.com/hitoshi/authsvc/internal/token"
)

// PasswordHasher はパスワードの一方向ハッシュと照合のインターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

// TokenIssuer はトークンペアの発行とアクセストークン検証のインターフェース。
type TokenIssuer interface {
	IssuePair(userID, email string) (*model.TokenPair, error)
	Verify(accessToken string) (*token.Claims, error)
	RefreshTTL() time.Duration
}

// LoginTracker はログイン履歴の記録と不審ログイン通知のインターフェース。
// 失敗を返さない。
type LoginTracker interface {
	TrackLogin(ctx context.Context, ev session.LoginEvent)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	VerificationTokenTTL time.Duration // デフォルト24時間
	ResetTokenTTL        time.Duration // デフォルト1時間
	Now                  func() time.Time
}

// Dependencies は認証サービスが利用するコンポーネント。
type Dependencies struct {
	Store    repository.Store
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Tracker  LoginTracker
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  metrics.Recorder
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store    repository.Store
	hasher   PasswordHasher
	tokens   TokenIssuer
	tracker  LoginTracker
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  metrics.Recorder
	config   ServiceConfig

	// 存在しないユーザーへのログインでも照合コストを揃えるためのダミーハッシュ
	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(deps Dependencies, config ServiceConfig) *Service {
	if config.VerificationTokenTTL <= 0 {
		config.VerificationTokenTTL = 24 * time.Hour
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Service{
		store:    deps.Store,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		tracker:  deps.Tracker,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		config:   config,
	}
}

// LoginInput はログイン要求。
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Register は未確認ユーザーを作成し、確認メールを送る。
// 確認メールが送れなかった場合はエラーを返す。
func (s *Service) Register(ctx context.Context, email, plainPassword string) (*model.MessageResult, error) {
	email = normalizeEmail(email)

	existing, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	hash, err := s.hashPassword(plainPassword)
	if err != nil {
		return nil, err
	}

	now := s.config.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	vt := s.newOneTimeToken(user.ID, now, s.config.VerificationTokenTTL)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return model.NewEmailAlreadyRegisteredError()
			}
			return err
		}
		return tx.VerificationTokens().Create(ctx, vt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))

	if res := s.notifier.SendVerification(ctx, user.Email, vt.Token); res.Err != nil {
		return nil, res.Err
	}

	return &model.MessageResult{Message: model.MsgRegistered}, nil
}

// VerifyEmail は確認トークンを引き換え、ユーザーを確認済みにする。
// トークン削除とフラグ更新は同じトランザクションで行う。
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) (*model.MessageResult, error) {
	var userID string
	err := s.redeem(ctx, model.TokenKindVerification, tokenValue, model.NewInvalidVerificationTokenError(),
		func(ctx context.Context, tx repository.Repositories, t *model.OneTimeToken) error {
			userID = t.UserID
			return tx.Users().MarkVerified(ctx, t.UserID, s.config.Now())
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("email verified", slog.String("user_id", userID))
	return &model.MessageResult{Message: model.MsgEmailVerified}, nil
}

// ResendVerification は未確認ユーザーに確認メールを再送する。
// 以前の確認トークンは破棄する。存在しない・確認済みの場合も同じ応答を返す。
func (s *Service) ResendVerification(ctx context.Context, email string) (*model.MessageResult, error) {
	result := &model.MessageResult{Message: model.MsgVerificationSent}

	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.IsVerified {
		return result, nil
	}

	vt := s.newOneTimeToken(user.ID, s.config.Now(), s.config.VerificationTokenTTL)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if _, err := tx.VerificationTokens().DeleteByUserID(ctx, user.ID); err != nil {
			return err
		}
		return tx.VerificationTokens().Create(ctx, vt)
	})
	if err != nil {
		return nil, err
	}

	_ = s.notifier.SendVerification(ctx, user.Email, vt.Token)
	return result, nil
}

// Login は資格情報を検証し、トークンペアを発行する。
// ユーザー不在とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, in LoginInput) (*model.LoginResult, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil {
		s.burnPasswordCheck(in.Password)
		s.metrics.RecordLogin("invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(user.PasswordHash, in.Password)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}
	if !ok {
		s.metrics.RecordLogin("invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	if !user.IsVerified {
		s.metrics.RecordLogin("unverified")
		return nil, model.NewEmailNotVerifiedError()
	}

	s.tracker.TrackLogin(ctx, session.LoginEvent{
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})

	pair, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}

	now := s.config.Now()
	rt := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     pair.RefreshToken,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		CreatedAt: now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Users().UpdateLastLogin(ctx, user.ID, in.IPAddress, now); err != nil {
			return err
		}
		return tx.RefreshTokens().Create(ctx, rt)
	})
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}

	s.metrics.RecordLogin("success")
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("ip_address", in.IPAddress),
	)

	return &model.LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user.Public(),
	}, nil
}

// Refresh は提示されたリフレッシュトークンを引き換え、新しいトークンペアを発行する。
// 旧トークンの削除と新トークンの作成は同じトランザクションで行うため、
// 同じトークンで並行にリフレッシュしても成功するのは1回だけ。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	if refreshToken == "" {
		s.metrics.RecordTokenRefresh("rejected")
		return nil, model.NewInvalidRefreshTokenError()
	}

	var pair *model.TokenPair
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		now := s.config.Now()

		old, err := tx.RefreshTokens().Consume(ctx, refreshToken, now)
		if err != nil {
			return err
		}
		if old == nil {
			return model.NewInvalidRefreshTokenError()
		}

		user, err := tx.Users().FindByID(ctx, old.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return model.NewSessionUserNotFoundError()
		}

		pair, err = s.tokens.IssuePair(user.ID, user.Email)
		if err != nil {
			return err
		}

		return tx.RefreshTokens().Create(ctx, &model.RefreshToken{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Token:     pair.RefreshToken,
			ExpiresAt: now.Add(s.tokens.RefreshTTL()),
			IPAddress: old.IPAddress,
			UserAgent: old.UserAgent,
			CreatedAt: now,
		})
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordTokenRefresh("rejected")
		} else {
			s.metrics.RecordTokenRefresh("error")
		}
		return nil, err
	}

	s.metrics.RecordTokenRefresh("success")
	return pair, nil
}

// Logout はリフレッシュトークンを失効させる。既に無効なトークンでも成功する。
func (s *Service) Logout(ctx context.Context, refreshToken string) (*model.MessageResult, error) {
	if refreshToken != "" {
		if err := s.store.RefreshTokens().DeleteByToken(ctx, refreshToken); err != nil {
			return nil, err
		}
	}
	return &model.MessageResult{Message: model.MsgLoggedOut}, nil
}

// ForgotPassword はリセットリンクを送る。
// メールアドレスの存在有無にかかわらず同じ応答を返す。
func (s *Service) ForgotPassword(ctx context.Context, email string) (*model.MessageResult, error) {
	result := &model.MessageResult{Message: model.MsgResetLinkSent}

	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return result, nil
	}

	rt := s.newOneTimeToken(user.ID, s.config.Now(), s.config.ResetTokenTTL)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if _, err := tx.ResetTokens().DeleteByUserID(ctx, user.ID); err != nil {
			return err
		}
		return tx.ResetTokens().Create(ctx, rt)
	})
	if err != nil {
		return nil, err
	}

	_ = s.notifier.SendPasswordReset(ctx, user.Email, rt.Token)
	return result, nil
}

// ResetPassword はリセットトークンを引き換えてパスワードを更新し、全リフレッシュトークンを失効させる。
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) (*model.MessageResult, error) {
	if tokenValue == "" {
		return nil, model.NewInvalidResetTokenError()
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.redeem(ctx, model.TokenKindPasswordReset, tokenValue, model.NewInvalidResetTokenError(),
		func(ctx context.Context, tx repository.Repositories, t *model.OneTimeToken) error {
			u, err := tx.Users().FindByID(ctx, t.UserID)
			if err != nil {
				return err
			}
			if u == nil {
				return model.NewUserNotFoundError()
			}
			user = u
			return s.replacePassword(ctx, tx, u.ID, hash)
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	_ = s.notifier.SendPasswordChanged(ctx, user.Email)

	return &model.MessageResult{Message: model.MsgPasswordReset}, nil
}

// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更し、
// 全リフレッシュトークンを失効させる。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*model.MessageResult, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	ok, err := s.hasher.Verify(user.PasswordHash, currentPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewInvalidCurrentPasswordError()
	}

	same, err := s.hasher.Verify(user.PasswordHash, newPassword)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, model.NewPasswordReuseError()
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return s.replacePassword(ctx, tx, user.ID, hash)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("password changed", slog.String("user_id", user.ID))
	_ = s.notifier.SendPasswordChanged(ctx, user.Email)

	return &model.MessageResult{Message: model.MsgPasswordChanged}, nil
}

// GetCurrentUser はユーザーの公開情報を返す。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Public(), nil
}

// Authenticate はアクセストークンを検証し、ユーザーIDを返す。ストアは参照しない。
func (s *Service) Authenticate(_ context.Context, accessToken string) (string, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return "", model.NewUnauthorizedError()
	}
	return claims.Subject, nil
}

// redeem はkind種別のワンタイムトークンを引き換え、同じトランザクションでthenを実行する。
// 無効・期限切れ・引き換え済みの場合はinvalidを返す。thenが失敗した場合は引き換えも取り消される。
func (s *Service) redeem(
	ctx context.Context,
	kind model.TokenKind,
	tokenValue string,
	invalid *model.APIError,
	then func(ctx context.Context, tx repository.Repositories, t *model.OneTimeToken) error,
) error {
	if tokenValue == "" {
		return invalid
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		t, err := oneTimeTokens(tx, kind).Consume(ctx, tokenValue, s.config.Now())
		if err != nil {
			return err
		}
		if t == nil {
			return invalid
		}
		return then(ctx, tx, t)
	})
}

// hashPassword は平文をハッシュ化する。ハッシュ化できない長さの入力は検証エラーにする。
func (s *Service) hashPassword(plain string) (string, error) {
	hash, err := s.hasher.Hash(plain)
	if errors.Is(err, password.ErrTooLong) {
		return "", model.NewValidationError(fmt.Sprintf("password: must be at most %d bytes", password.MaxBytes))
	}
	return hash, err
}

// replacePassword はパスワードを更新し、ユーザーの全リフレッシュトークンを削除する。
func (s *Service) replacePassword(ctx context.Context, tx repository.Repositories, userID, hash string) error {
	if err := tx.Users().UpdatePassword(ctx, userID, hash, s.config.Now()); err != nil {
		return err
	}
	revoked, err := tx.RefreshTokens().DeleteByUserID(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Info("refresh tokens revoked",
		slog.String("user_id", userID),
		slog.Int64("count", revoked),
	)
	return nil
}

func (s *Service) newOneTimeToken(userID string, now time.Time, ttl time.Duration) *model.OneTimeToken {
	return &model.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// burnPasswordCheck はダミーハッシュに対して照合を行い、結果を捨てる。
func (s *Service) burnPasswordCheck(plainPassword string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("authsvc-dummy-password")
		if err != nil {
			s.logger.Warn("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, plainPassword)
	}
}

func oneTimeTokens(r repository.Repositories, kind model.TokenKind) repository.OneTimeTokenRepository {
	if kind == model.TokenKindPasswordReset {
		return r.ResetTokens()
	}
	return r.VerificationTokens()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
