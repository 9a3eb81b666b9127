package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hitoshi/authsvc/internal/metrics"
	"github.com/hitoshi/authsvc/internal/middleware"
)

// HealthChecker はDB接続の疎通確認に必要なインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRF               middleware.CSRFConfig
	SecurityHeaders    middleware.SecurityHeadersConfig
	Metrics            metrics.Recorder
	MetricsHandler     http.Handler // nilの場合 /metrics は公開しない
	HealthChecker      HealthChecker
	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For等から接続元IPを決める。
	// リバースプロキシの背後で動かす場合に限って有効にする。
	TrustProxyHeaders  bool

	// 認証
	AuthService AuthService
	AuthConfig  AuthHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → (RealIP) → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	/auth/*: RateLimit → (refresh, logout: CSRF) → (change-password, me: BearerAuth)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.Middleware(rec))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Heartbeat("/heartbeat"))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	csrf := middleware.NewCSRFMiddleware(deps.CSRF)
	bearer := middleware.NewBearerAuthMiddleware(deps.AuthService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 認証API ---
	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware("auth"))
		}

		r.Post("/register", authHandler.Register)
		r.Get("/verify-email", authHandler.VerifyEmail)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/resend-verification", authHandler.ResendVerification)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		// Cookieの資格情報を使うルート
		r.With(csrf).Post("/refresh", authHandler.Refresh)
		r.With(csrf).Post("/logout", authHandler.Logout)

		// アクセストークンが必要なルート
		r.Group(func(r chi.Router) {
			r.Use(bearer)
			r.Post("/change-password", authHandler.ChangePassword)
			r.Get("/me", authHandler.Me)
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
