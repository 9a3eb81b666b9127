package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/hitoshi/authsvc/internal/model"
	"github.com/hitoshi/authsvc/internal/password"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

var (
	reUpper  = regexp.MustCompile(`[A-Z]`)
	reLower  = regexp.MustCompile(`[a-z]`)
	reDigit  = regexp.MustCompile(`[0-9]`)
	reSymbol = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// emailRules はメールアドレス入力の検証ルール。
var emailRules = []validation.Rule{
	validation.Required,
	validation.Length(3, 255),
	is.Email,
}

// withinHashLimit はbcryptが扱えるバイト数を超える入力を拒否する。
// Lengthは文字数で数えるため、マルチバイト文字の入力はここで弾く。
var withinHashLimit = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if len(s) > password.MaxBytes {
		return fmt.Errorf("must be at most %d bytes", password.MaxBytes)
	}
	return nil
})

// passwordRules は新しく設定するパスワードの強度ルール。
// 8〜72文字（72バイト以内）で、大文字・小文字・数字・記号をそれぞれ1文字以上含む。
var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(8, password.MaxBytes),
	withinHashLimit,
	validation.Match(reUpper).Error("must contain an uppercase letter"),
	validation.Match(reLower).Error("must contain a lowercase letter"),
	validation.Match(reDigit).Error("must contain a digit"),
	validation.Match(reSymbol).Error("must contain a symbol"),
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.Password, passwordRules...),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
	)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (r verifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(1, 255)),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.NewPassword, passwordRules...),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.NewPassword, passwordRules...),
	)
}

// refreshRequest はボディでリフレッシュトークンを送るクライアント向け。Cookieがあればそちらを優先する。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// decodeRequest はJSONボディをdstに読み込み、dstがvalidation.Validatableなら検証する。
// allowEmpty が true の場合は空ボディを許容する。
func decodeRequest(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return model.NewValidationError("request body must be valid JSON")
		}
	}

	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return model.NewValidationError(err.Error())
		}
	}
	return nil
}
