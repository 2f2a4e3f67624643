package model

import "time"

// ユーザー名の長さ制限（文字数）。usersテーブルのCHECK制約と一致させる。
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
)

// RoleAdmin はカタログ承認を行う管理者ロール名。
const RoleAdmin = "admin"

// User は観劇記録を付けるユーザーのプロフィール。
// IDは認証プロバイダが発行するユーザーIDと一致する。
// Emailは本人と管理者通知にのみ使い、他ユーザーには公開しない。
type User struct {
	ID        string
	Email     string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSource はセッションの解決元。
type SessionSource string

const (
	// SessionSourceCookie はサーバー側に保存したCookieセッション。
	SessionSourceCookie SessionSource = "cookie"
	// SessionSourceBearer は認証プロバイダ発行のアクセストークン。
	SessionSourceBearer SessionSource = "bearer"
)

// Session はリクエストを行うユーザーの認証済みセッション。
// IDはネタバレ表示状態のキーにも使う。
type Session struct {
	ID        string
	UserID    string
	Source    SessionSource
	ExpiresAt time.Time
	CreatedAt time.Time
}
