package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/authsvc/internal/metrics"
)

// MailerConfig はMailerの設定。
type MailerConfig struct {
	Product     string // メール見出しに表示するサービス名
	AppURL      string // 確認リンクの起点（APIサーバー）
	FrontendURL string // リセットリンクの起点（フロントエンド）
}

// Mailer はテンプレートを描画してTransportで送信するNotifier実装。
// 送信失敗はログとメトリクスに残し、Resultで呼び出し元に返す。
type Mailer struct {
	transport Transport
	config    MailerConfig
	renderer  *renderer
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewMailer はMailerを生成する。recorderがnilの場合は記録しない。
func NewMailer(transport Transport, config MailerConfig, logger *slog.Logger, recorder metrics.Recorder) *Mailer {
	if config.Product == "" {
		config.Product = "Sentinel AI"
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Mailer{
		transport: transport,
		config:    config,
		renderer:  newRenderer(),
		logger:    logger,
		metrics:   recorder,
	}
}

// SendVerification はメールアドレス確認リンクを送信する。
func (m *Mailer) SendVerification(ctx context.Context, to, token string) Result {
	return m.send(ctx, KindVerification, to, "Verify your email address", templateData{
		Title: "Verify your email",
		Email: to,
		Link:  buildLink(m.config.AppURL, "/auth/verify-email", token),
	})
}

// SendPasswordReset はパスワードリセットリンクを送信する。
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) Result {
	return m.send(ctx, KindPasswordReset, to, "Reset your password", templateData{
		Title: "Reset your password",
		Email: to,
		Link:  buildLink(m.config.FrontendURL, "/reset-password", token),
	})
}

// SendLoginAlert は不審なログインの通知を送信する。
func (m *Mailer) SendLoginAlert(ctx context.Context, to string, alert LoginAlert) Result {
	return m.send(ctx, KindLoginAlert, to, fmt.Sprintf("New login to your %s account", m.config.Product), templateData{
		Title:     "New login detected",
		Email:     to,
		Time:      alert.Timestamp.UTC().Format(time.RFC1123),
		IPAddress: alert.IPAddress,
		UserAgent: alert.UserAgent,
	})
}

// SendPasswordChanged はパスワード変更完了の通知を送信する。
func (m *Mailer) SendPasswordChanged(ctx context.Context, to string) Result {
	return m.send(ctx, KindPasswordChanged, to, "Your password was changed", templateData{
		Title: "Password changed",
		Email: to,
	})
}

func (m *Mailer) send(ctx context.Context, kind Kind, to, subject string, data templateData) Result {
	res := Result{Kind: kind, To: to}
	data.Product = m.config.Product

	html, err := m.renderer.render(kind, data)
	if err == nil {
		err = m.transport.Send(ctx, Message{To: to, Subject: subject, HTML: html})
	}

	m.metrics.RecordNotification(string(kind), err == nil)
	if err != nil {
		res.Err = fmt.Errorf("failed to send %s email: %w", kind, err)
		m.logger.Error("email send failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return res
	}

	m.logger.Info("email sent", slog.String("kind", string(kind)))
	return res
}

// buildLink はbaseURL+pathにtokenクエリを付けたURLを返す。
func buildLink(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// compile-time interface check
var _ Notifier = (*Mailer)(nil)
