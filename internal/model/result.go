package model

// MessageResult はメッセージのみを返す操作の結果。
type MessageResult struct {
	Message string `json:"message"`
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *PublicUser `json:"user"`
}

// クライアントに返す定型メッセージ
const (
	MsgRegistered       = "Registration successful. Please check your email to verify your account."
	MsgEmailVerified    = "Email verified successfully. You can now login."
	MsgVerificationSent = "If the account exists and is not yet verified, a new verification email has been sent."
	MsgLoggedOut        = "Logged out successfully"
	MsgResetLinkSent    = "If the email exists, a password reset link has been sent."
	MsgPasswordReset    = "Password reset successfully. Please login again."
	MsgPasswordChanged  = "Password changed successfully. Please login again."
)
