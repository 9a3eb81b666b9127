// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/authsvc/internal/auth"
	"github.com/hitoshi/authsvc/internal/middleware"
	"github.com/hitoshi/authsvc/internal/model"
)

// RefreshCookieName はリフレッシュトークンを運ぶHttpOnly Cookieの名前。
const RefreshCookieName = "refresh_token"

// unknownClient はIPやUser-Agentが取れない場合に記録する値。
const unknownClient = "Unknown"

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.MessageResult, error)
	VerifyEmail(ctx context.Context, token string) (*model.MessageResult, error)
	ResendVerification(ctx context.Context, email string) (*model.MessageResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*model.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) (*model.MessageResult, error)
	ForgotPassword(ctx context.Context, email string) (*model.MessageResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*model.MessageResult, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*model.MessageResult, error)
	GetCurrentUser(ctx context.Context, userID string) (*model.PublicUser, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	RefreshMaxAge time.Duration // リフレッシュトークンCookieの有効期間
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthService
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, config AuthHandlerConfig) *AuthHandler {
	if config.RefreshMaxAge <= 0 {
		config.RefreshMaxAge = 7 * 24 * time.Hour
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Register はユーザーを登録し、確認メールを送る。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// VerifyEmail はメールアドレス確認トークンを引き換える。
// GET /auth/verify-email?token=xxx（メール内リンク）
// POST /auth/verify-email {"token": "xxx"}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if r.Method == http.MethodGet {
		req.Token = r.URL.Query().Get("token")
		if err := req.Validate(); err != nil {
			handleServiceError(w, r, model.NewValidationError(err.Error()))
			return
		}
	} else if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ResendVerification は確認メールを再送する。
// POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Login は資格情報を検証し、アクセストークンとリフレッシュトークンを返す。
// リフレッシュトークンはHttpOnly Cookieにも設定する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: orUnknown(middleware.ClientIP(r)),
		UserAgent: orUnknown(r.UserAgent()),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Refresh はリフレッシュトークンをローテーションし、新しいトークンペアを返す。
// トークンはCookieを優先し、無ければボディの refreshToken を使う。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented, err := h.presentedRefreshToken(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	pair, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		// 拒否されたトークンはCookieからも消す。DB障害時は残す
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.clearRefreshCookie(w)
		}
		handleServiceError(w, r, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	middleware.WriteJSON(w, http.StatusOK, pair)
}

// Logout はリフレッシュトークンを失効させ、Cookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	presented, err := h.presentedRefreshToken(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Logout(r.Context(), presented)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ForgotPassword はパスワードリセットリンクを送る。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ResetPassword はリセットトークンで新しいパスワードを設定する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
// POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	var req changePasswordRequest
	if err := decodeRequest(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

// presentedRefreshToken はCookieまたはボディからリフレッシュトークンを取り出す。
func (h *AuthHandler) presentedRefreshToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	var req refreshRequest
	if err := decodeRequest(r, &req, true); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.RefreshMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func orUnknown(s string) string {
	if s == "" {
		return unknownClient
	}
	return s
}
