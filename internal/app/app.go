package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/authsvc/internal/auth"
	"github.com/hitoshi/authsvc/internal/config"
	"github.com/hitoshi/authsvc/internal/database"
	"github.com/hitoshi/authsvc/internal/handler"
	"github.com/hitoshi/authsvc/internal/logger"
	"github.com/hitoshi/authsvc/internal/metrics"
	"github.com/hitoshi/authsvc/internal/middleware"
	"github.com/hitoshi/authsvc/internal/notify"
	"github.com/hitoshi/authsvc/internal/password"
	"github.com/hitoshi/authsvc/internal/repository"
	"github.com/hitoshi/authsvc/internal/session"
	"github.com/hitoshi/authsvc/internal/token"
	"github.com/hitoshi/authsvc/internal/worker/cleanup"
)

// defaultPort はSERVER_PORT未設定時のポート。
const defaultPort = "3001"

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に合わせてログレベルを変更する
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		Usage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("environment", cfg.Environment),
		slog.String("app_url", cfg.AppURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はbuildServerが組み立てたHTTPハンドラーと後始末。
type server struct {
	handler http.Handler
	close   func()
}

// buildServer は全依存関係をワイヤリングしたHTTPハンドラーを返す。
func buildServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "authsvc"),
	)
	collector := metrics.NewCollector(registry)

	// 2. ストア
	store := repository.NewPostgresStore(db)

	// 3. トークンとパスワード
	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.JWTAccessSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	hasher := password.NewHasher(cfg.BcryptCost)

	// 4. メール送信
	var transport notify.Transport
	if cfg.ResendAPIKey != "" {
		transport = notify.NewResendTransport(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		log.Warn("RESEND_API_KEY is not set, emails will only be logged")
		transport = notify.NewLogTransport(log)
	}
	mailer := notify.NewMailer(transport, notify.MailerConfig{
		Product:     cfg.ProductName,
		AppURL:      cfg.AppURL,
		FrontendURL: cfg.FrontendURL,
	}, log, collector)

	// 5. ログイン履歴と不審ログイン判定
	tracker := session.NewTracker(store.LoginHistory(), mailer, log,
		session.WithPolicy(session.ThresholdPolicy(cfg.AnomalyThreshold)),
		session.WithMetrics(collector),
	)

	// 6. 認証サービス
	authService := auth.NewService(auth.Dependencies{
		Store:    store,
		Hasher:   hasher,
		Tokens:   issuer,
		Tracker:  tracker,
		Notifier: mailer,
		Logger:   log,
		Metrics:  collector,
	}, auth.ServiceConfig{
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
	})

	// 7. ルーター
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
	}, collector)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			GuardedCookie: handler.RefreshCookieName,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTS: cfg.CookieSecure},
		Metrics:         collector,
		MetricsHandler:  metrics.Handler(registry),
		HealthChecker:   db,

		TrustProxyHeaders: cfg.TrustProxyHeaders,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			RefreshMaxAge: cfg.JWTRefreshTTL,
		},
	})

	return &server{handler: router, close: limiter.Stop}, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := buildServer(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れトークンと古いログイン履歴のクリーンアップを定期実行する。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := cleanup.NewJob(db, slog.Default(), cfg.LoginHistoryRetentionDays)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.LoginHistoryRetentionDays),
	)

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
