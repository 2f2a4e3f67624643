// Package friendship は友達申請・承認・解除の状態遷移とユーザー検索を提供する。
package friendship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/stagelog/internal/metrics"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/repository"
)

// maxSearchResults はユーザー検索の最大件数。
const maxSearchResults = 10

// Service は友達関係のサービス層。
type Service struct {
	friendshipRepo repository.FriendshipRepository
	userRepo       repository.UserRepository
	metrics        metrics.MetricsCollector
}

// NewService はServiceを生成する。mがnilの場合はメトリクスを記録しない。
func NewService(friendshipRepo repository.FriendshipRepository, userRepo repository.UserRepository, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		friendshipRepo: friendshipRepo,
		userRepo:       userRepo,
		metrics:        m,
	}
}

// SendRequest はfromからtoへの友達申請を作成する。
// どちらの向きでも既に申請中または友達の場合はDUPLICATE_REQUESTを返す。
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUserID string) (*model.Friendship, error) {
	if toUserID == "" {
		return nil, model.NewValidationError("friend_id", "必須です")
	}
	if fromUserID == toUserID {
		return nil, model.NewValidationError("friend_id", "自分自身には申請できません")
	}

	addressee, err := s.userRepo.FindByID(ctx, toUserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if addressee == nil {
		return nil, model.NewUserNotFoundError()
	}

	existing, err := s.friendshipRepo.FindBetween(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, fmt.Errorf("友達関係の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateRequestError()
	}

	now := time.Now()
	f := &model.Friendship{
		ID:          uuid.New().String(),
		RequesterID: fromUserID,
		AddresseeID: toUserID,
		Status:      model.FriendshipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.friendshipRepo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateRequestError()
		}
		return nil, fmt.Errorf("友達申請の保存に失敗しました: %w", err)
	}

	s.metrics.RecordDomainEvent(metrics.EventFriendRequested)
	slog.Info("friend request sent",
		slog.String("friendship_id", f.ID),
		slog.String("requester_id", fromUserID),
		slog.String("addressee_id", toUserID),
	)
	return f, nil
}

// AcceptRequest は申請を承認する。承認できるのは申請先のユーザーのみ。
func (s *Service) AcceptRequest(ctx context.Context, callerID, friendshipID string) (*model.Friendship, error) {
	f, err := s.findInvolving(ctx, callerID, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.AddresseeID != callerID {
		return nil, model.NewForbiddenError("申請を承認できるのは申請先のユーザーのみです")
	}
	if f.Status != model.FriendshipPending {
		return nil, model.NewInvalidTransitionError(string(f.Status), string(model.FriendshipAccepted))
	}

	ok, err := s.friendshipRepo.UpdateStatus(ctx, f.ID, model.FriendshipPending, model.FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("友達申請の承認に失敗しました: %w", err)
	}
	if !ok {
		// 確認後に取り消された
		return nil, model.NewFriendshipNotFoundError(friendshipID)
	}

	f.Status = model.FriendshipAccepted
	f.UpdatedAt = time.Now()
	s.metrics.RecordDomainEvent(metrics.EventFriendAccepted)
	slog.Info("friend request accepted",
		slog.String("friendship_id", f.ID),
		slog.String("addressee_id", callerID),
	)
	return f, nil
}

// RejectRequest は申請中のエッジを削除する。申請先による拒否と申請者による取り消しの両方に使う。
func (s *Service) RejectRequest(ctx context.Context, callerID, friendshipID string) error {
	return s.deleteEdge(ctx, callerID, friendshipID, model.FriendshipPending)
}

// RemoveFriend は承認済みのエッジを削除する。どちらの当事者も実行できる。
func (s *Service) RemoveFriend(ctx context.Context, callerID, friendshipID string) error {
	return s.deleteEdge(ctx, callerID, friendshipID, model.FriendshipAccepted)
}

func (s *Service) deleteEdge(ctx context.Context, callerID, friendshipID string, status model.FriendshipStatus) error {
	f, err := s.findInvolving(ctx, callerID, friendshipID)
	if err != nil {
		return err
	}
	if f.Status != status {
		return model.NewInvalidTransitionError(string(f.Status), "removed")
	}

	ok, err := s.friendshipRepo.Delete(ctx, f.ID, status)
	if err != nil {
		return fmt.Errorf("友達関係の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewFriendshipNotFoundError(friendshipID)
	}
	slog.Info("friendship removed",
		slog.String("friendship_id", f.ID),
		slog.String("status", string(status)),
		slog.String("user_id", callerID),
	)
	return nil
}

// findInvolving は呼び出し元が当事者であるエッジを取得する。
// 当事者でない場合も存在を明かさずFRIENDSHIP_NOT_FOUNDを返す。
func (s *Service) findInvolving(ctx context.Context, callerID, friendshipID string) (*model.Friendship, error) {
	f, err := s.friendshipRepo.FindByID(ctx, friendshipID)
	if err != nil {
		return nil, fmt.Errorf("友達関係の取得に失敗しました: %w", err)
	}
	if f == nil || !f.Involves(callerID) {
		return nil, model.NewFriendshipNotFoundError(friendshipID)
	}
	return f, nil
}

// ListFriends は承認済みの友達をユーザー名順で返す。
func (s *Service) ListFriends(ctx context.Context, userID string) ([]*model.Friend, error) {
	friends, err := s.friendshipRepo.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("友達一覧の取得に失敗しました: %w", err)
	}
	return friends, nil
}

// ListIncomingRequests は自分宛ての申請中一覧を返す。
func (s *Service) ListIncomingRequests(ctx context.Context, userID string) ([]*model.Friend, error) {
	friends, err := s.friendshipRepo.ListIncoming(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("受信した友達申請の取得に失敗しました: %w", err)
	}
	return friends, nil
}

// ListOutgoingRequests は自分が送った申請中一覧を返す。
func (s *Service) ListOutgoingRequests(ctx context.Context, userID string) ([]*model.Friend, error) {
	friends, err := s.friendshipRepo.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("送信した友達申請の取得に失敗しました: %w", err)
	}
	return friends, nil
}

// SearchUsers はユーザー名の部分一致で最大10件を返す。自分自身は含めない。
// 空白のみの検索語には空の結果を返す。
func (s *Service) SearchUsers(ctx context.Context, query, excludeUserID string) ([]*model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*model.User{}, nil
	}
	users, err := s.userRepo.SearchByUsername(ctx, query, excludeUserID, maxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗しました: %w", err)
	}
	return users, nil
}
