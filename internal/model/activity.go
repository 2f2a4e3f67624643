package model

import "time"

// ActivityType はアクティビティの種別を表す。
type ActivityType string

const (
	// ActivityTypeSeen は観劇記録（レビューなし）。
	ActivityTypeSeen ActivityType = "seen"
	// ActivityTypeReview はレビュー付きの観劇記録。
	ActivityTypeReview ActivityType = "review"
	// ActivityTypeWantToSee は観たい登録。
	ActivityTypeWantToSee ActivityType = "want_to_see"
)

// Activity は追記専用のアクティビティ記録を表す。
// UserShowIDは元のエントリが削除されるとnilになる。
type Activity struct {
	ID           string
	UserID       string
	ShowID       string
	ActivityType ActivityType
	UserShowID   *string
	CreatedAt    time.Time
}

// FeedRow はフィード取得クエリの1行を表す。
// エントリ側の列はエントリ削除後にすべてnilとなる。
type FeedRow struct {
	Activity
	Username       string
	Show           ShowSummary
	EntryRating    *float64
	EntryReview    *string
	EntryCity      *string
	EntryDateSeen  *time.Time
	EntryAnonymous *bool
	EntrySpoilers  *bool
}

// FeedItem はフィードに表示するアクティビティ。
type FeedItem struct {
	Activity
	Username string
	Show     ShowSummary
	Detail   ActivityDetail
	Counts   ReactionCounts
}

// ActivityDetail はアクティビティ種別ごとの詳細を表す閉じた直和型。
// 実装はSeenDetail、ReviewDetail、WantToSeeDetailに限られる。
type ActivityDetail interface {
	Type() ActivityType
	activityDetail()
}

// SeenDetail は観劇記録の詳細。
type SeenDetail struct {
	Available bool
	City      string
	DateSeen  *time.Time
	Rating    *float64
}

// ReviewDetail はレビュー付き観劇記録の詳細。
// SpoilerHiddenがtrueの場合、Reviewは空になる。
type ReviewDetail struct {
	Available     bool
	City          string
	DateSeen      *time.Time
	Rating        *float64
	Review        string
	SpoilerHidden bool
}

// WantToSeeDetail は観たい登録の詳細。
type WantToSeeDetail struct {
	Available bool
}

func (SeenDetail) Type() ActivityType      { return ActivityTypeSeen }
func (ReviewDetail) Type() ActivityType    { return ActivityTypeReview }
func (WantToSeeDetail) Type() ActivityType { return ActivityTypeWantToSee }

func (SeenDetail) activityDetail()      {}
func (ReviewDetail) activityDetail()    {}
func (WantToSeeDetail) activityDetail() {}

// ReactionType はリアクションの種別を表す。
type ReactionType string

const (
	ReactionLike ReactionType = "like"
	ReactionLove ReactionType = "love"
	ReactionClap ReactionType = "clap"
)

// Valid は定義済みのリアクション種別かどうかを返す。
func (r ReactionType) Valid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionClap:
		return true
	}
	return false
}

// Reaction はアクティビティへのリアクションを表す。
// 1ユーザーにつき1アクティビティあたり最大1件。
type Reaction struct {
	ID           string
	ActivityID   string
	UserID       string
	ReactionType ReactionType
	CreatedAt    time.Time
}

// ReactionCounts はリアクション種別ごとの件数。
type ReactionCounts struct {
	Like int
	Love int
	Clap int
}

// Add は指定種別の件数を加算する。
func (c *ReactionCounts) Add(t ReactionType, n int) {
	switch t {
	case ReactionLike:
		c.Like += n
	case ReactionLove:
		c.Love += n
	case ReactionClap:
		c.Clap += n
	}
}

// Comment はアクティビティへのコメントを表す。
type Comment struct {
	ID          string
	ActivityID  string
	UserID      string
	Username    string
	CommentText string
	CreatedAt   time.Time
}
