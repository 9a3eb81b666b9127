// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv は設定ファイルのパスを指定する環境変数。未設定なら環境変数のみを使う。
const ConfigFileEnv = "AUTHSVC_CONFIG_FILE"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Token
	JWTAccessSecret      string
	JWTIssuer            string
	JWTAccessTTL         time.Duration
	JWTRefreshTTL        time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// Password
	BcryptCost int

	// Anomaly
	AnomalyThreshold time.Duration

	// Email
	ResendAPIKey string
	EmailFrom    string
	ProductName  string
	AppURL       string // 確認リンクの宛先（このAPI）
	FrontendURL  string // リセットリンクの宛先

	// Server
	ServerPort  string
	Environment string
	LogLevel    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string

	// Proxy
	TrustProxyHeaders bool // X-Forwarded-For等を接続元IPとして使うか

	// Rate Limit
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cleanup
	CleanupInterval           time.Duration
	LoginHistoryRetentionDays int
}

// IsProduction は本番環境かを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

var required = []string{
	"DATABASE_URL",
	"JWT_ACCESS_SECRET",
	"APP_URL",
	"FRONTEND_URL",
}

var intDefaults = map[string]int{
	"DB_MAX_OPEN_CONNS":            25,
	"DB_MAX_IDLE_CONNS":            5,
	"BCRYPT_COST":                  12,
	"RATE_LIMIT_REQUESTS":          10,
	"LOGIN_HISTORY_RETENTION_DAYS": 180,
}

var durationDefaults = map[string]time.Duration{
	"DB_CONN_MAX_LIFETIME":   30 * time.Minute,
	"JWT_ACCESS_TTL":         15 * time.Minute,
	"JWT_REFRESH_TTL":        7 * 24 * time.Hour,
	"VERIFICATION_TOKEN_TTL": 24 * time.Hour,
	"RESET_TOKEN_TTL":        time.Hour,
	"ANOMALY_THRESHOLD":      7 * 24 * time.Hour,
	"RATE_LIMIT_WINDOW":      60 * time.Second,
	"CLEANUP_INTERVAL":       24 * time.Hour,
}

func setDefaults(v *viper.Viper) {
	for key, value := range intDefaults {
		v.SetDefault(key, value)
	}
	for key, value := range durationDefaults {
		v.SetDefault(key, value)
	}
	v.SetDefault("JWT_ISSUER", "authsvc")
	v.SetDefault("EMAIL_FROM", "Sentinel AI <onboarding@resend.dev>")
	v.SetDefault("PRODUCT_NAME", "Sentinel AI")
	v.SetDefault("SERVER_PORT", "3001")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("TRUST_PROXY_HEADERS", false)
}

// Load は環境変数（と任意の設定ファイル）からConfigを読み込む。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBMaxOpenConns:    positiveInt(v, "DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    positiveInt(v, "DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: positiveDuration(v, "DB_CONN_MAX_LIFETIME"),

		JWTAccessSecret:      v.GetString("JWT_ACCESS_SECRET"),
		JWTIssuer:            v.GetString("JWT_ISSUER"),
		JWTAccessTTL:         positiveDuration(v, "JWT_ACCESS_TTL"),
		JWTRefreshTTL:        positiveDuration(v, "JWT_REFRESH_TTL"),
		VerificationTokenTTL: positiveDuration(v, "VERIFICATION_TOKEN_TTL"),
		ResetTokenTTL:        positiveDuration(v, "RESET_TOKEN_TTL"),

		BcryptCost:       positiveInt(v, "BCRYPT_COST"),
		AnomalyThreshold: positiveDuration(v, "ANOMALY_THRESHOLD"),

		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		EmailFrom:    v.GetString("EMAIL_FROM"),
		ProductName:  v.GetString("PRODUCT_NAME"),
		AppURL:       strings.TrimRight(v.GetString("APP_URL"), "/"),
		FrontendURL:  strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),

		ServerPort:  v.GetString("SERVER_PORT"),
		Environment: environment(v),
		LogLevel:    v.GetString("LOG_LEVEL"),

		CookieDomain: v.GetString("COOKIE_DOMAIN"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGIN")),
		TrustProxyHeaders:  v.GetBool("TRUST_PROXY_HEADERS"),

		RateLimitRequests: positiveInt(v, "RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   positiveDuration(v, "RATE_LIMIT_WINDOW"),

		CleanupInterval:           positiveDuration(v, "CLEANUP_INTERVAL"),
		LoginHistoryRetentionDays: positiveInt(v, "LOGIN_HISTORY_RETENTION_DAYS"),
	}
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.AppURL, "https://")

	return cfg, nil
}

// environment はAPP_ENV、なければNODE_ENVを返す。どちらも無ければdevelopment。
func environment(v *viper.Viper) string {
	for _, key := range []string{"APP_ENV", "NODE_ENV"} {
		if env := strings.ToLower(strings.TrimSpace(v.GetString(key))); env != "" {
			return env
		}
	}
	return "development"
}

// positiveDuration はkeyの値を返す。解釈できない・0以下の場合はデフォルト値を返す。
func positiveDuration(v *viper.Viper, key string) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return durationDefaults[key]
}

// positiveInt はkeyの値を返す。解釈できない・0以下の場合はデフォルト値を返す。
func positiveInt(v *viper.Viper, key string) int {
	if i := v.GetInt(key); i > 0 {
		return i
	}
	return intDefaults[key]
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
