// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/stagelog/internal/model"
)

// UserRepository はユーザープロフィールの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Upsert はユーザーを作成する。既に存在する場合はメールアドレスを更新し、
	// ユーザー名は空でない場合のみ上書きする。
	// ユーザー名がユニーク制約に違反した場合はErrDuplicateを返す。
	Upsert(ctx context.Context, user *model.User) error

	// SearchByUsername はユーザー名の部分一致（大文字小文字を区別しない）で検索する。
	// excludeUserIDのユーザーは結果に含めない。
	SearchByUsername(ctx context.Context, query, excludeUserID string, limit int) ([]*model.User, error)

	// HasRole は指定ユーザーがロールを持つかどうかを返す。
	HasRole(ctx context.Context, userID, role string) (bool, error)

	// ListEmailsByRole は指定ロールを持つユーザーのメールアドレス一覧を返す。
	ListEmailsByRole(ctx context.Context, role string) ([]string, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ShowRepository は演目カタログの永続化インターフェース。
type ShowRepository interface {
	// Create は演目を作成する。
	// タイトルがユニーク制約に違反した場合はErrDuplicateを返す。
	Create(ctx context.Context, show *model.Show) error

	// FindByID は指定IDの演目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Show, error)

	// ListByStatus は指定状態の演目一覧を返す。
	// searchが空でない場合はタイトルの部分一致（大文字小文字を区別しない）で絞り込む。
	// approvedはタイトル昇順、それ以外は作成日時降順で返す。
	ListByStatus(ctx context.Context, status model.ApprovalStatus, search string) ([]*model.Show, error)

	// UpdateApprovalStatus は承認待ちの演目の状態を更新する。
	// 承認待ちでない場合は更新せずfalseを返す。
	UpdateApprovalStatus(ctx context.Context, id string, status model.ApprovalStatus) (bool, error)
}

// UserShowRepository はユーザーごとの演目記録の永続化インターフェース。
type UserShowRepository interface {
	// CreateWithActivity はエントリとアクティビティを同一トランザクションで作成する。
	// (user_id, show_id) がユニーク制約に違反した場合はErrDuplicateを返す。
	CreateWithActivity(ctx context.Context, entry *model.UserShowEntry, activity *model.Activity) error

	// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserShowEntry, error)

	// FindByUserAndShow はユーザーIDと演目IDでエントリを取得する。見つからない場合はnilを返す。
	FindByUserAndShow(ctx context.Context, userID, showID string) (*model.UserShowEntry, error)

	// UpdateDiary は日記フィールド（評価、レビュー、メモ、ネタバレ）を更新する。
	UpdateDiary(ctx context.Context, entry *model.UserShowEntry) error

	// Delete は指定IDのエントリを削除する。
	// 関連するアクティビティは削除されず、参照のみNULLになる。
	Delete(ctx context.Context, id string) error

	// ListSeenByUser は観劇日付のある観劇済みエントリを観劇日降順で返す。
	// dateがnilでない場合はその日付のエントリに絞り込む。
	ListSeenByUser(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error)

	// ListByUserAndStatus は指定状態のエントリを返す。
	// seenは観劇日降順、want_to_seeは作成日時降順。
	ListByUserAndStatus(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error)
}

// ActivityRepository はアクティビティの参照インターフェース。
// アクティビティの作成はUserShowRepository.CreateWithActivityが行う。
type ActivityRepository interface {
	// FindByID は指定IDのアクティビティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Activity, error)

	// ListRecent は新しい順にアクティビティを返す。
	// userIDsがnilでない場合はそのユーザーのアクティビティに限定する。
	ListRecent(ctx context.Context, limit int, userIDs []string) ([]*model.FeedRow, error)
}

// ReactionRepository はリアクションの永続化インターフェース。
type ReactionRepository interface {
	// FindByActivityAndUser はユーザーのリアクションを取得する。見つからない場合はnilを返す。
	FindByActivityAndUser(ctx context.Context, activityID, userID string) (*model.Reaction, error)

	// Replace はユーザーの既存リアクションを削除し、reactionがnilでなければ挿入する。
	// 削除と挿入は同一トランザクションで行う。
	Replace(ctx context.Context, activityID, userID string, reaction *model.Reaction) error

	// CountByActivity はリアクション種別ごとの件数を返す。
	CountByActivity(ctx context.Context, activityID string) (model.ReactionCounts, error)

	// CountByActivities は複数アクティビティのリアクション件数をまとめて返す。
	CountByActivities(ctx context.Context, activityIDs []string) (map[string]model.ReactionCounts, error)
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// ListByActivity はアクティビティのコメントを作成日時昇順で返す。
	ListByActivity(ctx context.Context, activityID string) ([]*model.Comment, error)
}

// FriendshipRepository は友達関係エッジの永続化インターフェース。
type FriendshipRepository interface {
	// Create はエッジを作成する。
	// (user_id, friend_id) がユニーク制約に違反した場合はErrDuplicateを返す。
	Create(ctx context.Context, friendship *model.Friendship) error

	// FindByID は指定IDのエッジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Friendship, error)

	// FindBetween は2ユーザー間のエッジを方向を問わず取得する。見つからない場合はnilを返す。
	FindBetween(ctx context.Context, userA, userB string) (*model.Friendship, error)

	// UpdateStatus は指定状態(from)のエッジのみ状態を更新する。
	// 該当エッジがない場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, from, to model.FriendshipStatus) (bool, error)

	// Delete は指定状態のエッジを削除する。該当エッジがない場合はfalseを返す。
	Delete(ctx context.Context, id string, status model.FriendshipStatus) (bool, error)

	// ListAccepted はユーザーの承認済み友達を相手のユーザー名順で返す。
	ListAccepted(ctx context.Context, userID string) ([]*model.Friend, error)

	// ListIncoming はユーザー宛ての申請中エッジを返す。
	ListIncoming(ctx context.Context, userID string) ([]*model.Friend, error)

	// ListOutgoing はユーザーが送った申請中エッジを返す。
	ListOutgoing(ctx context.Context, userID string) ([]*model.Friend, error)

	// ListAcceptedIDs は承認済み友達のユーザーID一覧を返す。
	ListAcceptedIDs(ctx context.Context, userID string) ([]string, error)
}

// ReviewRepository は公開レビュー射影（public_reviewsビュー）の参照インターフェース。
type ReviewRepository interface {
	// FindByID は指定IDの公開レビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PublicReview, error)

	// ListByShow は演目の公開行を観劇日降順で返す。
	// cityが空でない場合は完全一致で絞り込む。
	ListByShow(ctx context.Context, showID, city string) ([]*model.PublicReview, error)

	// ListRatings は演目の評価値（NULLを除く）を返す。
	ListRatings(ctx context.Context, showID string) ([]float64, error)
}
