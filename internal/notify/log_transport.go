package notify

import (
	"context"
	"log/slog"
)

// LogTransport はメールを送らず、宛先と件名だけをログに出すTransport。
// APIキー未設定の開発環境で使う。本文はトークンを含むため出力しない。
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport はLogTransportを生成する。
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send はメッセージの概要をログに出す。
func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.InfoContext(ctx, "email delivery skipped (no transport configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// compile-time interface check
var _ Transport = (*LogTransport)(nil)
