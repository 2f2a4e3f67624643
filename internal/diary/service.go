// Package diary はユーザーごとの観劇記録（観た・観たい）と日記のドメインロジックを提供する。
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
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
	maxReviewLength = 2000
	maxNotesLength  = 1000
	maxCityLength   = 100
	maxRating       = 5.0
)

// MarkSeenInput は観劇記録の入力。Ratingの0は未評価を表す。
type MarkSeenInput struct {
	DateSeen         time.Time
	City             string
	Rating           float64
	Review           string
	PrivateNotes     string
	IsAnonymous      bool
	ContainsSpoilers bool
}

// UpdateDiaryInput は日記編集の入力。Ratingの0は未評価として保存する。
type UpdateDiaryInput struct {
	Rating           float64
	Review           string
	PrivateNotes     string
	ContainsSpoilers bool
}

// Service は観劇記録のサービス層。
type Service struct {
	entryRepo repository.UserShowRepository
	showRepo  repository.ShowRepository
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。mがnilの場合はメトリクスを記録しない。
func NewService(
	entryRepo repository.UserShowRepository,
	showRepo repository.ShowRepository,
	sanitizer security.TextSanitizer,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		entryRepo: entryRepo,
		showRepo:  showRepo,
		sanitizer: sanitizer,
		metrics:   m,
	}
}

// MarkSeen は観劇済みの記録を作成し、同一トランザクションでアクティビティを発行する。
// レビュー本文があればreview、なければseenのアクティビティになる。
func (s *Service) MarkSeen(ctx context.Context, userID, showID string, in MarkSeenInput) (*model.UserShowEntry, error) {
	if in.DateSeen.IsZero() {
		return nil, model.NewValidationError("date_seen", "必須です")
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return nil, model.NewValidationError("city", "必須です")
	}
	if utf8.RuneCountInString(city) > maxCityLength {
		return nil, model.NewValidationError("city", fmt.Sprintf("%d文字以内で入力してください", maxCityLength))
	}
	rating, err := normalizeRating(in.Rating)
	if err != nil {
		return nil, err
	}
	review, notes, err := s.sanitizeDiaryText(in.Review, in.PrivateNotes)
	if err != nil {
		return nil, err
	}

	if err := s.requireApprovedShow(ctx, showID); err != nil {
		return nil, err
	}

	dateSeen := truncateToDate(in.DateSeen)
	now := time.Now()
	entry := &model.UserShowEntry{
		ID:               uuid.New().String(),
		UserID:           userID,
		ShowID:           showID,
		Status:           model.EntryStatusSeen,
		DateSeen:         &dateSeen,
		City:             city,
		Rating:           rating,
		Review:           review,
		PrivateNotes:     notes,
		IsAnonymous:      in.IsAnonymous,
		ContainsSpoilers: in.ContainsSpoilers,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	activityType := model.ActivityTypeSeen
	if review != "" {
		activityType = model.ActivityTypeReview
	}

	if err := s.create(ctx, entry, activityType); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkWantToSee は観たい記録を作成し、want_to_seeのアクティビティを発行する。
func (s *Service) MarkWantToSee(ctx context.Context, userID, showID string) (*model.UserShowEntry, error) {
	if err := s.requireApprovedShow(ctx, showID); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &model.UserShowEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		ShowID:    showID,
		Status:    model.EntryStatusWantToSee,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.create(ctx, entry, model.ActivityTypeWantToSee); err != nil {
		return nil, err
	}
	return entry, nil
}

// create は重複を確認してからエントリとアクティビティを保存する。
func (s *Service) create(ctx context.Context, entry *model.UserShowEntry, activityType model.ActivityType) error {
	existing, err := s.entryRepo.FindByUserAndShow(ctx, entry.UserID, entry.ShowID)
	if err != nil {
		return fmt.Errorf("記録の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return model.NewDuplicateEntryError()
	}

	entryID := entry.ID
	activity := &model.Activity{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		ShowID:       entry.ShowID,
		ActivityType: activityType,
		UserShowID:   &entryID,
		CreatedAt:    entry.CreatedAt,
	}

	if err := s.entryRepo.CreateWithActivity(ctx, entry, activity); err != nil {
		// 確認後に並行リクエストが先に登録した場合
		if errors.Is(err, repository.ErrDuplicate) {
			return model.NewDuplicateEntryError()
		}
		return fmt.Errorf("記録の保存に失敗しました: %w", err)
	}

	s.metrics.RecordDomainEvent(metrics.EventEntryCreated)
	slog.Info("user show entry created",
		slog.String("entry_id", entry.ID),
		slog.String("user_id", entry.UserID),
		slog.String("show_id", entry.ShowID),
		slog.String("activity_type", string(activityType)),
	)
	return nil
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

// UpdateDiaryEntry は観劇記録の日記フィールドを更新する。
// 本人以外にはENTRY_NOT_FOUNDを返す。アクティビティは変更しない。
func (s *Service) UpdateDiaryEntry(ctx context.Context, userID, entryID string, in UpdateDiaryInput) (*model.UserShowEntry, error) {
	rating, err := normalizeRating(in.Rating)
	if err != nil {
		return nil, err
	}
	review, notes, err := s.sanitizeDiaryText(in.Review, in.PrivateNotes)
	if err != nil {
		return nil, err
	}

	entry, err := s.findOwned(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.EntryStatusSeen {
		return nil, model.NewValidationError("status", "観劇済みの記録のみ日記を編集できます")
	}

	entry.Rating = rating
	entry.Review = review
	entry.PrivateNotes = notes
	entry.ContainsSpoilers = in.ContainsSpoilers
	entry.UpdatedAt = time.Now()

	if err := s.entryRepo.UpdateDiary(ctx, entry); err != nil {
		return nil, fmt.Errorf("日記の更新に失敗しました: %w", err)
	}
	return entry, nil
}

// DeleteDiaryEntry は記録のみを削除する。
// アクティビティとそのリアクション・コメントは残り、記録への参照だけが外れる。
func (s *Service) DeleteDiaryEntry(ctx context.Context, userID, entryID string) error {
	if _, err := s.findOwned(ctx, userID, entryID); err != nil {
		return err
	}
	if err := s.entryRepo.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("記録の削除に失敗しました: %w", err)
	}
	s.metrics.RecordDomainEvent(metrics.EventEntryDeleted)
	slog.Info("user show entry deleted",
		slog.String("entry_id", entryID),
		slog.String("user_id", userID),
	)
	return nil
}

// ListDiary は観劇日のある観劇済み記録を観劇日の新しい順に返す。
// dateがnilでなければその日付の記録に絞り込む。
func (s *Service) ListDiary(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error) {
	if date != nil {
		d := truncateToDate(*date)
		date = &d
	}
	entries, err := s.entryRepo.ListSeenByUser(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("日記の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// ListMyShows は指定状態の記録一覧を返す。
func (s *Service) ListMyShows(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error) {
	if !status.Valid() {
		return nil, model.NewValidationError("status", "seen または want_to_see を指定してください")
	}
	entries, err := s.entryRepo.ListByUserAndStatus(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

func (s *Service) findOwned(ctx context.Context, userID, entryID string) (*model.UserShowEntry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

func (s *Service) sanitizeDiaryText(review, notes string) (string, string, error) {
	review = s.sanitizer.SanitizeText(review)
	if utf8.RuneCountInString(review) > maxReviewLength {
		return "", "", model.NewValidationError("review", fmt.Sprintf("%d文字以内で入力してください", maxReviewLength))
	}
	notes = s.sanitizer.SanitizeText(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return "", "", model.NewValidationError("private_notes", fmt.Sprintf("%d文字以内で入力してください", maxNotesLength))
	}
	return review, notes, nil
}

// normalizeRating は評価値を検証する。0は未評価としてnilを返す。
// 0より大きく5以下の0.5刻みのみ受け付ける。
func normalizeRating(r float64) (*float64, error) {
	if r == 0 {
		return nil, nil
	}
	if math.IsNaN(r) || r < 0 || r > maxRating || math.Mod(r*2, 1) != 0 {
		return nil, model.NewValidationError("rating", "0.5から5までの0.5刻みで指定してください")
	}
	return &r, nil
}

// truncateToDate は時刻を切り捨てて暦日に揃える。
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
