package model

import "time"

// LoginHistory はログイン監査ログの1行。追記のみ。
type LoginHistory struct {
	ID          string
	UserID      string
	IPAddress   string
	UserAgent   string
	LoginAt     time.Time
	WasNotified bool
}
