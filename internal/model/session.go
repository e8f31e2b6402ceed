package model

import "time"

// Session は匿名ユーザーのブラウザセッションを表す。
// UserIDはセッション作成時に1回だけ払い出され、有効期間中は変わらない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
