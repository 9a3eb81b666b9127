// Package notify はテンプレート化されたメール通知を提供する。
//
// 送信はベストエフォートで、失敗はResultとして呼び出し元に返す。
// 失敗はMailer側でログに残るため、呼び出し元は明示的に破棄してよい。
// 例外はユーザー登録時の確認メールで、呼び出し元が失敗を検査する。
package notify

import (
	"context"
	"time"
)

// Kind は通知メールの種類。
type Kind string

const (
	KindVerification    Kind = "verification"
	KindPasswordReset   Kind = "password_reset"
	KindLoginAlert      Kind = "login_alert"
	KindPasswordChanged Kind = "password_changed"
)

// Result は1通の送信結果。
type Result struct {
	Kind Kind
	To   string
	Err  error
}

// OK は送信に成功したかを返す。
func (r Result) OK() bool {
	return r.Err == nil
}

// LoginAlert は不審なログイン通知に載せる情報。
type LoginAlert struct {
	IPAddress string
	UserAgent string
	Timestamp time.Time
}

// Notifier は認証フローが送る4種類のメールのインターフェース。
type Notifier interface {
	SendVerification(ctx context.Context, to, token string) Result
	SendPasswordReset(ctx context.Context, to, token string) Result
	SendLoginAlert(ctx context.Context, to string, alert LoginAlert) Result
	SendPasswordChanged(ctx context.Context, to string) Result
}

// Message は送信する1通のメール。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport はメール配送の手段。
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
