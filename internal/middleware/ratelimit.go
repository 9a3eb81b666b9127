package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/authsvc/internal/metrics"
	"github.com/hitoshi/authsvc/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Requests        int           // Window内に許可するリクエスト数（バーストサイズ）
	Window          time.Duration // Requests件が補充されるまでの期間
	CleanupInterval time.Duration // 使われなくなったエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証エンドポイントはクライアントIPごとに 10 req / 60s。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Requests:        10,
		Window:          60 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

func (c RateLimiterConfig) limit() rate.Limit {
	return rate.Limit(float64(c.Requests) / c.Window.Seconds())
}

// clientLimiter はクライアントごとのリミッターと最終アクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	metrics metrics.Recorder

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, rec metrics.Recorder) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Requests <= 0 {
		config.Requests = def.Requests
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if rec == nil {
		rec = metrics.Nop{}
	}

	rl := &RateLimiter{
		config:  config,
		metrics: rec,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はクライアントIP単位のレート制限ミドルウェアを返す。
// scopeはログとメトリクスのラベルに使う。
func (rl *RateLimiter) Middleware(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			if !rl.limiterFor(ip).Allow() {
				rl.metrics.RecordRateLimited(scope)
				slog.Warn("rate limit exceeded",
					slog.String("ip_address", ip),
					slog.String("scope", scope),
					slog.String("path", r.URL.Path),
				)
				rl.writeRateLimitResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientCount は現在管理されているクライアントのエントリ数を返す。
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if cl, ok := rl.clients[key]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	cl := &clientLimiter{
		limiter:    rate.NewLimiter(rl.config.limit(), rl.config.Requests),
		lastAccess: now,
	}
	rl.clients[key] = cl
	return cl.limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はWindowとCleanupIntervalの長い方を超えて使われていないエントリを削除する。
// その時点でバケットは満杯に戻っているため、削除しても制限は緩まない。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := max(rl.config.Window, rl.config.CleanupInterval)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.clients, key)
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには1リクエスト分が補充されるまでの秒数を設定する。
func (rl *RateLimiter) writeRateLimitResponse(w http.ResponseWriter) {
	retryAfterSec := int(math.Ceil(1.0 / float64(rl.config.limit())))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}

// ClientIP はリクエスト元のIPアドレスを返す。
// プロキシヘッダーを信頼する構成（chiのRealIP）ではX-Forwarded-For等が反映済み。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
