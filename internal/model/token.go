package model

import "time"

// TokenKind はワンタイムトークンの種類を表す。
type TokenKind string

const (
	// TokenKindVerification はメールアドレス確認用トークン。
	TokenKindVerification TokenKind = "email_verification"
	// TokenKindPasswordReset はパスワードリセット用トークン。
	TokenKindPasswordReset TokenKind = "password_reset"
)

// OneTimeToken は一度だけ引き換え可能なトークン。
// 確認メールとパスワードリセットで共通の形をとる。
type OneTimeToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshToken はサーバー側で失効可能な不透明リフレッシュトークン。
// ローテーションのたびに削除され、新しい行が作られる。
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// TokenPair はアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
