// Package password はパスワードの一方向ハッシュと照合を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost はbcryptのデフォルトのワークファクター。
const DefaultCost = 12

// MaxBytes はハッシュ化できる平文の最大バイト数。bcryptの入力上限。
const MaxBytes = 72

// ErrTooLong は平文がMaxBytesを超えていることを表す。
var ErrTooLong = bcrypt.ErrPasswordTooLong

// Hasher はbcryptでパスワードをハッシュ化・照合する。
type Hasher struct {
	cost int
}

// NewHasher はHasherを生成する。範囲外のcostはDefaultCostに置き換える。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードのハッシュを返す。MaxBytesを超える場合はErrTooLongを返す。
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxBytes {
		return "", ErrTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードがハッシュと一致するかを返す。
// 不一致はエラーではなくfalseを返し、ハッシュ自体が壊れている場合のみエラーを返す。
func (h *Hasher) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify password: %w", err)
}
