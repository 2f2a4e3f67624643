package model

import "time"

// AnonymousUsername は匿名レビューの表示名。
const AnonymousUsername = "Anonymous"

// PublicReview は公開レビュー射影（public_reviewsビュー）の1行を表す。
// 非公開メモは含まない。匿名の場合UserIDとUsernameは空になる。
type PublicReview struct {
	ID               string
	ShowID           string
	UserID           string
	Username         string
	Rating           *float64
	Review           string
	City             string
	DateSeen         *time.Time
	IsAnonymous      bool
	ContainsSpoilers bool
	CreatedAt        time.Time
}

// RatingSummary は演目の平均評価を表す。
// 評価が1件もない場合Averageはnil。
type RatingSummary struct {
	Average *float64
	Count   int
}
