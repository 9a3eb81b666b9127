package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level はSetupDefaultで設定したグローバルロガーの出力レベル。
var level = new(slog.LevelVar)

// redactedKeys は値を出力しない属性キー。
var redactedKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
}

const redacted = "[REDACTED]"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 秘密情報を示すキーの属性値は伏せ字に置き換える。
func Setup(w io.Writer, leveler slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       leveler,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

// SetLevel はグローバルロガーの出力レベルを変更する。
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel はdebug/info/warn/errorを解釈する。不明な値はinfo。
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
