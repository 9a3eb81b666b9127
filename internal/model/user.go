// Package model はドメインモデルを定義する。
package model

import "time"

// User はメールアドレスとパスワードで認証するユーザーを表す。
// 物理削除はしない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsVerified   bool
	LastLoginAt  *time.Time
	LastLoginIP  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser はクライアントに返すユーザー情報。パスワードハッシュは含まない。
type PublicUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
}

// Public はUserの公開用射影を返す。
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		IsVerified: u.IsVerified,
	}
}
