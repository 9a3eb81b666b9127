package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authsvc/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はCSRFトークンを送るリクエストヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 24 * 60 * 60
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// GuardedCookie が設定されている場合、そのCookieを伴う要求だけを検証する。
	// Cookieを使わずボディで資格情報を送るクライアントはCSRFの対象にならない。
	GuardedCookie string
}

// NewCSRFMiddleware はダブルサブミット方式でCSRFトークンを検証するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !carriesGuardedCookie(r, config.GuardedCookie) {
				next.ServeHTTP(w, r)
				return
			}

			reason := ""
			cookie, err := r.Cookie(csrfCookieName)
			header := r.Header.Get(csrfHeaderName)
			switch {
			case err != nil || cookie.Value == "":
				reason = "missing cookie token"
			case header == "":
				reason = "missing header token"
			case subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1:
				reason = "token mismatch"
			}

			if reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
// 既存のCSRFトークンCookieがある場合はそれを返し、なければ新規生成する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			WriteJSON(w, http.StatusOK, map[string]string{"token": cookie.Value})
			return
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			Domain:   config.CookieDomain,
			MaxAge:   csrfCookieMaxAge,
			HttpOnly: false,
			Secure:   config.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
		WriteJSON(w, http.StatusOK, map[string]string{"token": token})
	})
}

func carriesGuardedCookie(r *http.Request, name string) bool {
	if name == "" {
		return true
	}
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// generateCSRFToken は暗号的に安全なCSRFトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
