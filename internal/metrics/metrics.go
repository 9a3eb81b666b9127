// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// サービス層、通知、ミドルウェアから利用する。
type Recorder interface {
	RecordLogin(outcome string)
	RecordTokenRefresh(outcome string)
	RecordNotification(kind string, ok bool)
	RecordLoginAnomaly(notified bool)
	RecordRateLimited(scope string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	loginAnomalies *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_token_refresh_total",
			Help: "結果別のトークンリフレッシュ数",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_notifications_total",
			Help: "種類と結果別の通知メール送信数",
		}, []string{"kind", "result"}),
		loginAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_login_tracked_total",
			Help: "記録したログイン数（通知の有無別）",
		}, []string{"notified"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"scope"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authsvc_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authsvc_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.refreshes,
		c.notifications,
		c.loginAnomalies,
		c.rateLimited,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordNotification は通知メールの送信結果を記録する。
func (c *Collector) RecordNotification(kind string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	c.notifications.WithLabelValues(kind, result).Inc()
}

// RecordLoginAnomaly は記録したログインと、それが通知対象だったかを記録する。
func (c *Collector) RecordLoginAnomaly(notified bool) {
	c.loginAnomalies.WithLabelValues(strconv.FormatBool(notified)).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordLogin(string) {}
func (Nop) RecordTokenRefresh(string) {}
func (Nop) RecordNotification(string, bool) {}
func (Nop) RecordLoginAnomaly(bool) {}
func (Nop) RecordRateLimited(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
