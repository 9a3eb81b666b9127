// Package session はログイン履歴の記録と不審なログインの検知を提供する。
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authsvc/internal/metrics"
	"github.com/hitoshi/authsvc/internal/model"
	"github.com/hitoshi/authsvc/internal/notify"
	"github.com/hitoshi/authsvc/internal/repository"
)

// DefaultThreshold は別IPからの前回ログインからこの期間を超えたら通知する閾値。
const DefaultThreshold = 7 * 24 * time.Hour

// Policy は今回のログインを通知対象とするかを決める。
// lastDiffering は今回と異なるIPからの直近のログインで、無ければnil。
type Policy func(lastDiffering *model.LoginHistory, now time.Time) bool

// ThresholdPolicy は「別IPからの直近ログインが存在し、かつthresholdより古い」場合に通知するPolicyを返す。
// 自宅と職場を毎日行き来するような利用では通知しない。thresholdが0以下ならDefaultThreshold。
func ThresholdPolicy(threshold time.Duration) Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return func(lastDiffering *model.LoginHistory, now time.Time) bool {
		if lastDiffering == nil {
			return false
		}
		return now.Sub(lastDiffering.LoginAt) > threshold
	}
}

// DefaultPolicy は7日閾値のPolicy。
var DefaultPolicy = ThresholdPolicy(DefaultThreshold)

// LoginEvent は記録対象の1回のログイン。
type LoginEvent struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
}

// Tracker はログインを記録し、必要に応じて通知を送る。
type Tracker struct {
	history  repository.LoginHistoryRepository
	notifier notify.Notifier
	policy   Policy
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// Option はTrackerの任意設定。
type Option func(*Tracker)

// WithPolicy は通知判定のPolicyを差し替える。
func WithPolicy(p Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(rec metrics.Recorder) Option {
	return func(t *Tracker) { t.metrics = rec }
}

// NewTracker はTrackerを生成する。
func NewTracker(history repository.LoginHistoryRepository, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		history:  history,
		notifier: notifier,
		policy:   DefaultPolicy,
		logger:   logger,
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackLogin はログインを履歴に追加し、Policyが通知対象と判定した場合はメールを送る。
// 失敗はログに残すだけで呼び出し元には返さない。ログイン自体は失敗させない。
func (t *Tracker) TrackLogin(ctx context.Context, ev LoginEvent) {
	log := t.logger.With(slog.String("user_id", ev.UserID))

	last, err := t.history.FindLatestFromOtherIP(ctx, ev.UserID, ev.IPAddress)
	if err != nil {
		log.Error("failed to look up login history", slog.String("error", err.Error()))
		return
	}

	now := t.now()
	shouldNotify := t.policy(last, now)

	entry := &model.LoginHistory{
		ID:          uuid.NewString(),
		UserID:      ev.UserID,
		IPAddress:   ev.IPAddress,
		UserAgent:   ev.UserAgent,
		LoginAt:     now,
		WasNotified: shouldNotify,
	}
	if err := t.history.Create(ctx, entry); err != nil {
		log.Error("failed to record login history", slog.String("error", err.Error()))
		return
	}

	t.metrics.RecordLoginAnomaly(shouldNotify)
	if !shouldNotify {
		return
	}

	attrs := []any{slog.String("ip_address", ev.IPAddress)}
	if last != nil {
		attrs = append(attrs,
			slog.String("previous_ip_address", last.IPAddress),
			slog.Time("previous_login_at", last.LoginAt),
		)
	}
	log.Info("unusual login detected, sending alert", attrs...)

	// 失敗はMailerがログに残す
	_ = t.notifier.SendLoginAlert(ctx, ev.Email, notify.LoginAlert{
		IPAddress: ev.IPAddress,
		UserAgent: ev.UserAgent,
		Timestamp: entry.LoginAt,
	})
}
