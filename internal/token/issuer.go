// Package token はアクセストークンとリフレッシュトークンの発行・検証を提供する。
//
// アクセストークンはHS256署名のJWTで、ストアを参照せずに検証できる。
// リフレッシュトークンはクレームを持たない不透明なランダム文字列で、
// 有効性はストアに行が存在し期限内であることだけで決まる。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authsvc/internal/model"
)

// refreshTokenBytes はリフレッシュトークンの乱数バイト数。
const refreshTokenBytes = 48

// ErrInvalidToken はアクセストークンが不正・期限切れ・署名不一致であることを表す。
var ErrInvalidToken = errors.New("invalid access token")

// Config はトークン発行の設定。起動時に1回組み立てる。
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration // デフォルト15分
	RefreshTTL time.Duration // デフォルト7日
}

// Claims はアクセストークンのクレーム。subjectにユーザーIDを持つ。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer はトークンペアを発行し、アクセストークンを検証する。
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer はIssuerを生成する。秘密鍵が空の場合は設定ミスとしてエラーを返す。
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: signing secret is empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock は時刻関数を差し替えたIssuerを返す。テスト用。
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssuePair はアクセストークンとリフレッシュトークンを発行する。
// 署名や乱数生成の失敗はそのままエラーとして返す。
func (i *Issuer) IssuePair(userID, email string) (*model.TokenPair, error) {
	access, err := i.signAccess(userID, email)
	if err != nil {
		return nil, err
	}

	refresh, err := NewOpaque(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify はアクセストークンの署名・有効期限・発行者を検証し、クレームを返す。
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) signAccess(userID, email string) (string, error) {
	now := i.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// NewOpaque はnバイトの暗号論的乱数を16進文字列で返す。
func NewOpaque(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
