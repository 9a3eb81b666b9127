package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authsvc/internal/middleware"
	"github.com/hitoshi/authsvc/internal/model"
)

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
// APIError以外は500とし、詳細はログにのみ残す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case model.ErrCodeUnauthorized,
		model.ErrCodeInvalidCredentials,
		model.ErrCodeEmailNotVerified,
		model.ErrCodeInvalidRefreshToken,
		model.ErrCodeSessionUserNotFound,
		model.ErrCodeInvalidCurrentPassword:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidOrExpiredToken,
		model.ErrCodePasswordReuse,
		model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
