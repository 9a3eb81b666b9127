package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessRecorder はステータスコードと書き込みバイト数を記録するResponseWriter。
type accessRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (ar *accessRecorder) WriteHeader(code int) {
	if ar.status == 0 {
		ar.status = code
	}
	ar.ResponseWriter.WriteHeader(code)
}

func (ar *accessRecorder) Write(b []byte) (int, error) {
	if ar.status == 0 {
		ar.status = http.StatusOK
	}
	n, err := ar.ResponseWriter.Write(b)
	ar.bytes += n
	return n, err
}

// statusCode は記録したステータスを返す。何も書かれなかった場合は200。
func (ar *accessRecorder) statusCode() int {
	if ar.status == 0 {
		return http.StatusOK
	}
	return ar.status
}

// levelFor はステータスに応じたログレベルを返す。
func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// 応答のステータス・サイズ・所要時間、接続元IP、リクエストID（あれば）を含む。
// クエリ文字列にはトークンが含まれうるため記録しない。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &accessRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("ip_address", ClientIP(r)),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}

			logger.LogAttrs(r.Context(), levelFor(status), "http_request", attrs...)
		})
	}
}
