// Package catalog は演目カタログの投稿・承認・公開のドメインロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/stagelog/internal/metrics"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/notification"
	"github.com/hitoshi/stagelog/internal/repository"
	"github.com/hitoshi/stagelog/internal/security"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
)

// SubmitShowInput は演目投稿の入力。
type SubmitShowInput struct {
	Title       string
	PhotoURL    string
	Description string
}

// ShowListCache は承認済み演目一覧のキャッシュ。
// 取得失敗はキャッシュミスとして扱い、ストアから読み直す。
type ShowListCache interface {
	GetApproved(ctx context.Context, search string) ([]*model.Show, bool, error)
	SetApproved(ctx context.Context, search string, shows []*model.Show) error
	Invalidate(ctx context.Context) error
}

// Service は演目カタログのサービス層。
type Service struct {
	showRepo  repository.ShowRepository
	userRepo  repository.UserRepository
	cache     ShowListCache
	notifier  notification.Notifier
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithCache は承認済み一覧のキャッシュを設定する。
func WithCache(cache ShowListCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithNotifier は投稿・承認時の通知先を設定する。
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService はServiceを生成する。キャッシュと通知は未設定なら無効になる。
func NewService(
	showRepo repository.ShowRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	opts ...Option,
) *Service {
	s := &Service{
		showRepo:  showRepo,
		userRepo:  userRepo,
		cache:     noopCache{},
		notifier:  notification.Discard{},
		sanitizer: sanitizer,
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitShow は承認待ちの演目を登録し、管理者へ通知する。
func (s *Service) SubmitShow(ctx context.Context, in SubmitShowInput, submitterID string) (*model.Show, error) {
	show, err := s.createPending(ctx, in, submitterID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Notification{
		Type:      notification.TypeNewShow,
		ShowTitle: show.Title,
	})

	return show, nil
}

// createPending は入力を検証して承認待ちの演目を作成する。通知は行わない。
func (s *Service) createPending(ctx context.Context, in SubmitShowInput, submitterID string) (*model.Show, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewValidationError("title", "必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, model.NewValidationError("title", fmt.Sprintf("%d文字以内で入力してください", maxTitleLength))
	}

	photoURL := strings.TrimSpace(in.PhotoURL)
	if err := validatePhotoURL(photoURL); err != nil {
		return nil, err
	}

	description := s.sanitizer.SanitizeText(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewValidationError("description", fmt.Sprintf("%d文字以内で入力してください", maxDescriptionLength))
	}

	now := time.Now()
	show := &model.Show{
		ID:             uuid.New().String(),
		Title:          title,
		PhotoURL:       photoURL,
		Description:    description,
		ApprovalStatus: model.ApprovalPending,
		CreatedBy:      submitterID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.showRepo.Create(ctx, show); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateTitleError(title)
		}
		return nil, fmt.Errorf("演目の保存に失敗しました: %w", err)
	}

	s.metrics.RecordDomainEvent(metrics.EventShowSubmitted)
	slog.Info("show submitted",
		slog.String("show_id", show.ID),
		slog.String("user_id", submitterID),
	)

	return show, nil
}

func validatePhotoURL(raw string) error {
	if raw == "" {
		return model.NewValidationError("photo_url", "必須です")
	}
	u, err := url.Parse(raw)
	if err != nil || !security.IsHTTPScheme(u.Scheme) || u.Host == "" {
		return model.NewValidationError("photo_url", "http(s)のURLを指定してください")
	}
	return nil
}

// ApproveShow は承認待ちの演目を承認し、投稿者へ通知する。
func (s *Service) ApproveShow(ctx context.Context, showID string) (*model.Show, error) {
	show, err := s.transition(ctx, showID, model.ApprovalApproved)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDomainEvent(metrics.EventShowApproved)

	n := notification.Notification{
		Type:      notification.TypeShowApproved,
		ShowTitle: show.Title,
	}
	if show.CreatedBy != "" {
		submitter, err := s.userRepo.FindByID(ctx, show.CreatedBy)
		if err != nil {
			slog.Warn("failed to resolve submitter for notification",
				slog.String("show_id", show.ID),
				slog.String("error", err.Error()),
			)
		} else if submitter != nil {
			n.SubmitterEmail = submitter.Email
		}
	}
	s.notifier.Notify(ctx, n)

	return show, nil
}

// RejectShow は承認待ちの演目を却下する。
func (s *Service) RejectShow(ctx context.Context, showID string) (*model.Show, error) {
	show, err := s.transition(ctx, showID, model.ApprovalRejected)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDomainEvent(metrics.EventShowRejected)
	return show, nil
}

// transition はpendingからの状態遷移を行い、一覧キャッシュを破棄する。
func (s *Service) transition(ctx context.Context, showID string, to model.ApprovalStatus) (*model.Show, error) {
	show, err := s.showRepo.FindByID(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("演目の取得に失敗しました: %w", err)
	}
	if show == nil {
		return nil, model.NewShowNotFoundError(showID)
	}
	if show.ApprovalStatus != model.ApprovalPending {
		return nil, model.NewInvalidTransitionError(string(show.ApprovalStatus), string(to))
	}

	updated, err := s.showRepo.UpdateApprovalStatus(ctx, showID, to)
	if err != nil {
		return nil, fmt.Errorf("演目の状態更新に失敗しました: %w", err)
	}
	if !updated {
		// 並行する承認・却下に先を越された
		current, err := s.showRepo.FindByID(ctx, showID)
		if err != nil || current == nil {
			return nil, model.NewInvalidTransitionError(string(model.ApprovalPending), string(to))
		}
		return nil, model.NewInvalidTransitionError(string(current.ApprovalStatus), string(to))
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate catalog cache", slog.String("error", err.Error()))
	}

	show.ApprovalStatus = to
	show.UpdatedAt = time.Now()
	slog.Info("show approval status changed",
		slog.String("show_id", showID),
		slog.String("status", string(to)),
	)
	return show, nil
}

// ListApprovedShows は承認済み演目をタイトル順に返す。
// searchが空でない場合はタイトルの部分一致で絞り込む。
func (s *Service) ListApprovedShows(ctx context.Context, search string) ([]*model.Show, error) {
	search = strings.TrimSpace(search)

	shows, hit, err := s.cache.GetApproved(ctx, search)
	if err != nil {
		slog.Warn("catalog cache read failed", slog.String("error", err.Error()))
	}
	s.metrics.RecordCacheLookup(hit)
	if hit {
		return shows, nil
	}

	shows, err = s.showRepo.ListByStatus(ctx, model.ApprovalApproved, search)
	if err != nil {
		return nil, fmt.Errorf("演目一覧の取得に失敗しました: %w", err)
	}

	if err := s.cache.SetApproved(ctx, search, shows); err != nil {
		slog.Warn("catalog cache write failed", slog.String("error", err.Error()))
	}
	return shows, nil
}

// ListPendingShows は承認待ちの演目を新しい順に返す。
func (s *Service) ListPendingShows(ctx context.Context) ([]*model.Show, error) {
	shows, err := s.showRepo.ListByStatus(ctx, model.ApprovalPending, "")
	if err != nil {
		return nil, fmt.Errorf("承認待ち一覧の取得に失敗しました: %w", err)
	}
	return shows, nil
}

// GetShow は演目を取得する。
// 未承認の演目は投稿者と管理者にのみ見え、それ以外にはSHOW_NOT_FOUNDを返す。
func (s *Service) GetShow(ctx context.Context, viewerID, showID string) (*model.Show, error) {
	show, err := s.showRepo.FindByID(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("演目の取得に失敗しました: %w", err)
	}
	if show == nil {
		return nil, model.NewShowNotFoundError(showID)
	}
	if show.ApprovalStatus == model.ApprovalApproved {
		return show, nil
	}

	if viewerID == "" {
		return nil, model.NewShowNotFoundError(showID)
	}
	if show.CreatedBy == viewerID {
		return show, nil
	}
	isAdmin, err := s.userRepo.HasRole(ctx, viewerID, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("ロールの確認に失敗しました: %w", err)
	}
	if !isAdmin {
		return nil, model.NewShowNotFoundError(showID)
	}
	return show, nil
}

type noopCache struct{}

func (noopCache) GetApproved(context.Context, string) ([]*model.Show, bool, error) {
	return nil, false, nil
}
func (noopCache) SetApproved(context.Context, string, []*model.Show) error { return nil }
func (noopCache) Invalidate(context.Context) error                          { return nil }
