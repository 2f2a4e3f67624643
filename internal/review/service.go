// Package review は演目ごとの公開レビュー集計と、匿名・ネタバレの表示制御を提供する。
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/repository"
)

// unnamedUsername はユーザー名が未設定の投稿者の表示名。
const unnamedUsername = "User"

// Presented は閲覧者向けに整形した公開レビュー。
// 匿名行のUserIDは空、Usernameは"Anonymous"になる。
// SpoilerHiddenがtrueの場合Reviewは空になる。
type Presented struct {
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
	SpoilerHidden    bool
	CreatedAt        time.Time
}

// ReviewPage は演目のレビュー一覧と平均評価。
type ReviewPage struct {
	Reviews []Presented
	Rating  model.RatingSummary
}

// Present は公開レビューを閲覧者向けに整形する。
// revealedがfalseのネタバレレビューは本文を隠す。
func Present(rv *model.PublicReview, revealed bool) Presented {
	p := Presented{
		ID:               rv.ID,
		ShowID:           rv.ShowID,
		UserID:           rv.UserID,
		Username:         rv.Username,
		Rating:           rv.Rating,
		Review:           rv.Review,
		City:             rv.City,
		DateSeen:         rv.DateSeen,
		IsAnonymous:      rv.IsAnonymous,
		ContainsSpoilers: rv.ContainsSpoilers,
		CreatedAt:        rv.CreatedAt,
	}
	switch {
	case rv.IsAnonymous:
		p.UserID = ""
		p.Username = model.AnonymousUsername
	case p.Username == "":
		p.Username = unnamedUsername
	}
	if rv.ContainsSpoilers && !revealed {
		p.Review = ""
		p.SpoilerHidden = true
	}
	return p
}

// Service は公開レビューのサービス層。
type Service struct {
	reviewRepo repository.ReviewRepository
	showRepo   repository.ShowRepository
	reveals    *RevealStore
}

// NewService はServiceを生成する。
func NewService(reviewRepo repository.ReviewRepository, showRepo repository.ShowRepository, reveals *RevealStore) *Service {
	return &Service{
		reviewRepo: reviewRepo,
		showRepo:   showRepo,
		reveals:    reveals,
	}
}

// GetReviewsForShow は演目のレビュー本文を持つ公開行と平均評価を返す。
// cityはレビュー一覧のみを絞り込み、平均評価は演目全体で計算する。
// sessionIDは閲覧者のネタバレ表示状態の参照に使う。未ログインなら空でよい。
func (s *Service) GetReviewsForShow(ctx context.Context, sessionID, showID, city string) (*ReviewPage, error) {
	if err := s.requireApprovedShow(ctx, showID); err != nil {
		return nil, err
	}

	rows, err := s.reviewRepo.ListByShow(ctx, showID, city)
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}

	var rating model.RatingSummary
	if city == "" {
		rating = Summarize(rows)
	} else {
		rating, err = s.ratingFor(ctx, showID)
		if err != nil {
			return nil, err
		}
	}

	page := &ReviewPage{Reviews: []Presented{}, Rating: rating}
	for _, rv := range rows {
		if rv.Review == "" {
			continue
		}
		page.Reviews = append(page.Reviews, Present(rv, s.reveals.IsRevealed(sessionID, rv.ID)))
	}
	return page, nil
}

// AverageRating は演目の平均評価を返す。
func (s *Service) AverageRating(ctx context.Context, showID string) (model.RatingSummary, error) {
	if err := s.requireApprovedShow(ctx, showID); err != nil {
		return model.RatingSummary{}, err
	}
	return s.ratingFor(ctx, showID)
}

func (s *Service) ratingFor(ctx context.Context, showID string) (model.RatingSummary, error) {
	ratings, err := s.reviewRepo.ListRatings(ctx, showID)
	if err != nil {
		return model.RatingSummary{}, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	return summarizeRatings(ratings), nil
}

// ToggleReveal は閲覧セッションでのネタバレ表示を切り替え、切り替え後のレビューを返す。
func (s *Service) ToggleReveal(ctx context.Context, sessionID, reviewID string) (Presented, error) {
	rv, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return Presented{}, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	if rv == nil {
		return Presented{}, model.NewReviewNotFoundError(reviewID)
	}
	revealed := s.reveals.Toggle(sessionID, reviewID)
	return Present(rv, revealed), nil
}

func (s *Service) requireApprovedShow(ctx context.Context, showID string) error {
	show, err := s.showRepo.FindByID(ctx, showID)
	if err != nil {
		return fmt.Errorf("演目の取得に失敗しました: %w", err)
	}
	if show == nil || show.ApprovalStatus != model.ApprovalApproved {
		return model.NewShowNotFoundError(showID)
	}
	return nil
}
