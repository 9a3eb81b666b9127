package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// Conflict
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"

	// Unauthorized
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	ErrCodeInvalidRefreshToken    = "INVALID_REFRESH_TOKEN"
	ErrCodeSessionUserNotFound    = "SESSION_USER_NOT_FOUND"
	ErrCodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"

	// BadRequest
	ErrCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	ErrCodePasswordReuse         = "PASSWORD_REUSE"
	ErrCodeValidation            = "VALIDATION_ERROR"

	// NotFound
	ErrCodeUserNotFound = "USER_NOT_FOUND"

	// コア外（ミドルウェア）
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeCSRFInvalid = "CSRF_TOKEN_INVALID"
)

// NewEmailAlreadyRegisteredError は登録済みメールアドレスでの再登録エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "Email already registered",
		Category: "auth",
		Action:   "Log in with this email or use the forgot password flow.",
	}
}

// NewUnauthorizedError はBearerトークンが無い、または無効な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致で同じ内容を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewEmailNotVerifiedError はメール未確認ユーザーのログインエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Please verify your email before logging in",
		Category: "auth",
		Action:   "Open the verification link sent to your email, or request a new one.",
	}
}

// NewInvalidRefreshTokenError は無効・期限切れ・使用済みのリフレッシュトークンエラーを生成する。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "Invalid or expired refresh token",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewSessionUserNotFoundError はリフレッシュ時にユーザーが存在しない場合のエラーを生成する。
func NewSessionUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewInvalidCurrentPasswordError は現在のパスワード不一致エラーを生成する。
func NewInvalidCurrentPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCurrentPassword,
		Message:  "Current password is incorrect",
		Category: "auth",
		Action:   "Enter your current password correctly.",
	}
}

// NewInvalidVerificationTokenError は無効または期限切れの確認トークンエラーを生成する。
func NewInvalidVerificationTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpiredToken,
		Message:  "Invalid or expired verification token",
		Category: "auth",
		Action:   "Request a new verification email.",
	}
}

// NewInvalidResetTokenError は無効または期限切れのリセットトークンエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpiredToken,
		Message:  "Invalid or expired reset token",
		Category: "auth",
		Action:   "Request a new password reset link.",
	}
}

// NewPasswordReuseError は現在と同じパスワードへの変更エラーを生成する。
func NewPasswordReuseError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordReuse,
		Message:  "New password must be different from current password",
		Category: "validation",
		Action:   "Choose a password you are not currently using.",
	}
}

// NewValidationError はリクエスト入力の検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  detail,
		Category: "validation",
		Action:   "Fix the highlighted fields and try again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}
