// Package engagement はアクティビティフィードと、リアクション・コメントによる反応を提供する。
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/stagelog/internal/metrics"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/repository"
	"github.com/hitoshi/stagelog/internal/security"
)

const (
	// DefaultFeedLimit はフィードの既定件数かつ上限。
	DefaultFeedLimit = 50

	maxCommentLength = 1000
)

// FeedScope はフィードの対象範囲。
type FeedScope string

const (
	// ScopeAll は全ユーザーのアクティビティ。
	ScopeAll FeedScope = "all"
	// ScopeFriends は閲覧者本人と承認済み友達のアクティビティ。
	ScopeFriends FeedScope = "friends"
)

// FeedQuery はフィード取得の条件。ゼロ値は既定件数の全体フィードを表す。
type FeedQuery struct {
	Limit int
	Scope FeedScope
}

// ReactResult はリアクション切り替え後の状態。Reactionがnilなら取り消し済み。
type ReactResult struct {
	Reaction *model.Reaction
	Counts   model.ReactionCounts
}

// Service はフィードとエンゲージメントのサービス層。
type Service struct {
	activityRepo   repository.ActivityRepository
	reactionRepo   repository.ReactionRepository
	commentRepo    repository.CommentRepository
	friendshipRepo repository.FriendshipRepository
	sanitizer      security.TextSanitizer
	metrics        metrics.MetricsCollector
}

// NewService はServiceを生成する。mがnilの場合はメトリクスを記録しない。
func NewService(
	activityRepo repository.ActivityRepository,
	reactionRepo repository.ReactionRepository,
	commentRepo repository.CommentRepository,
	friendshipRepo repository.FriendshipRepository,
	sanitizer security.TextSanitizer,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		activityRepo:   activityRepo,
		reactionRepo:   reactionRepo,
		commentRepo:    commentRepo,
		friendshipRepo: friendshipRepo,
		sanitizer:      sanitizer,
		metrics:        m,
	}
}

// ListRecentActivity は新しい順にフィードを返す。
// 各アイテムには演目の要約、投稿者名、エントリの公開フィールド、リアクション件数を含める。
func (s *Service) ListRecentActivity(ctx context.Context, viewerID string, q FeedQuery) ([]*model.FeedItem, error) {
	limit := q.Limit
	if limit <= 0 || limit > DefaultFeedLimit {
		limit = DefaultFeedLimit
	}

	var userIDs []string
	switch q.Scope {
	case "", ScopeAll:
	case ScopeFriends:
		ids, err := s.friendshipRepo.ListAcceptedIDs(ctx, viewerID)
		if err != nil {
			return nil, fmt.Errorf("友達一覧の取得に失敗しました: %w", err)
		}
		userIDs = append(ids, viewerID)
	default:
		return nil, model.NewValidationError("scope", "all または friends を指定してください")
	}

	rows, err := s.activityRepo.ListRecent(ctx, limit, userIDs)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	counts := map[string]model.ReactionCounts{}
	if len(ids) > 0 {
		counts, err = s.reactionRepo.CountByActivities(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("リアクション件数の取得に失敗しました: %w", err)
		}
	}

	items := make([]*model.FeedItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, &model.FeedItem{
			Activity: row.Activity,
			Username: row.Username,
			Show:     row.Show,
			Detail:   buildDetail(row),
			Counts:   counts[row.ID],
		})
	}
	return items, nil
}

// buildDetail はフィード行から種別ごとの詳細を組み立てる。
// 元のエントリが削除済みの場合はAvailable=falseの詳細のみ返す。
// 匿名のエントリは評価・本文・都市を出さない。
func buildDetail(row *model.FeedRow) model.ActivityDetail {
	available := row.UserShowID != nil
	switch row.ActivityType {
	case model.ActivityTypeWantToSee:
		return model.WantToSeeDetail{Available: available}
	case model.ActivityTypeReview:
		if !available {
			return model.ReviewDetail{}
		}
		d := model.ReviewDetail{Available: true, DateSeen: row.EntryDateSeen}
		if deref(row.EntryAnonymous) {
			return d
		}
		d.City = derefString(row.EntryCity)
		d.Rating = row.EntryRating
		if deref(row.EntrySpoilers) {
			d.SpoilerHidden = true
		} else {
			d.Review = derefString(row.EntryReview)
		}
		return d
	default:
		if !available {
			return model.SeenDetail{}
		}
		d := model.SeenDetail{Available: true, DateSeen: row.EntryDateSeen}
		if deref(row.EntryAnonymous) {
			return d
		}
		d.City = derefString(row.EntryCity)
		d.Rating = row.EntryRating
		return d
	}
}

func deref(b *bool) bool {
	return b != nil && *b
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// React はリアクションを切り替える。
// 同じ種別なら取り消し、別の種別なら置き換え、未リアクションなら追加する。
func (s *Service) React(ctx context.Context, activityID, userID string, reactionType model.ReactionType) (*ReactResult, error) {
	if !reactionType.Valid() {
		return nil, model.NewValidationError("reaction_type", "like、love、clap のいずれかを指定してください")
	}
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	current, err := s.reactionRepo.FindByActivityAndUser(ctx, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
	}

	var next *model.Reaction
	if current == nil || current.ReactionType != reactionType {
		next = &model.Reaction{
			ID:           uuid.New().String(),
			ActivityID:   activityID,
			UserID:       userID,
			ReactionType: reactionType,
			CreatedAt:    time.Now(),
		}
	}

	if err := s.reactionRepo.Replace(ctx, activityID, userID, next); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("リアクションの保存に失敗しました: %w", err)
		}
		// 同じユーザーの同時リクエストが先に挿入した。確定した状態を返す
		next, err = s.reactionRepo.FindByActivityAndUser(ctx, activityID, userID)
		if err != nil {
			return nil, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
		}
		slog.Info("concurrent reaction resolved",
			slog.String("activity_id", activityID),
			slog.String("user_id", userID),
		)
	} else {
		s.metrics.RecordDomainEvent(metrics.EventReactionToggled)
	}

	counts, err := s.reactionRepo.CountByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("リアクション件数の取得に失敗しました: %w", err)
	}
	return &ReactResult{Reaction: next, Counts: counts}, nil
}

// ReactionCounts はアクティビティのリアクション件数を返す。
func (s *Service) ReactionCounts(ctx context.Context, activityID string) (model.ReactionCounts, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return model.ReactionCounts{}, err
	}
	counts, err := s.reactionRepo.CountByActivity(ctx, activityID)
	if err != nil {
		return model.ReactionCounts{}, fmt.Errorf("リアクション件数の取得に失敗しました: %w", err)
	}
	return counts, nil
}

// Comment はアクティビティにコメントを追加する。本文はプレーンテキストとして保存する。
func (s *Service) Comment(ctx context.Context, activityID, userID, text string) (*model.Comment, error) {
	body := s.sanitizer.SanitizeText(strings.TrimSpace(text))
	if body == "" {
		return nil, model.NewValidationError("comment_text", "必須です")
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return nil, model.NewValidationError("comment_text", fmt.Sprintf("%d文字以内で入力してください", maxCommentLength))
	}
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:          uuid.New().String(),
		ActivityID:  activityID,
		UserID:      userID,
		CommentText: body,
		CreatedAt:   time.Now(),
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの保存に失敗しました: %w", err)
	}

	s.metrics.RecordDomainEvent(metrics.EventCommentAdded)
	slog.Info("comment added",
		slog.String("comment_id", comment.ID),
		slog.String("activity_id", activityID),
		slog.String("user_id", userID),
	)
	return comment, nil
}

// ListComments はアクティビティのコメントを古い順に返す。
func (s *Service) ListComments(ctx context.Context, activityID string) ([]*model.Comment, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return comments, nil
}

func (s *Service) requireActivity(ctx context.Context, activityID string) error {
	a, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if a == nil {
		return model.NewActivityNotFoundError(activityID)
	}
	return nil
}
