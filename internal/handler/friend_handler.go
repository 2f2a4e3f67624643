package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/stagelog/internal/model"
)

// FriendshipServiceInterface は友達ハンドラーが必要とするサービスインターフェース。
type FriendshipServiceInterface interface {
	SendRequest(ctx context.Context, fromUserID, toUserID string) (*model.Friendship, error)
	AcceptRequest(ctx context.Context, callerID, friendshipID string) (*model.Friendship, error)
	RejectRequest(ctx context.Context, callerID, friendshipID string) error
	RemoveFriend(ctx context.Context, callerID, friendshipID string) error
	ListFriends(ctx context.Context, userID string) ([]*model.Friend, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]*model.Friend, error)
	ListOutgoingRequests(ctx context.Context, userID string) ([]*model.Friend, error)
	SearchUsers(ctx context.Context, query, excludeUserID string) ([]*model.User, error)
}

// FriendHandler は友達関係とユーザー検索のHTTPハンドラー。
type FriendHandler struct {
	service FriendshipServiceInterface
}

// NewFriendHandler はFriendHandlerを生成する。
func NewFriendHandler(service FriendshipServiceInterface) *FriendHandler {
	return &FriendHandler{service: service}
}

type friendRequestRequest struct {
	FriendID string `json:"friend_id"`
}

type friendshipResponse struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	AddresseeID string    `json:"addressee_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type friendResponse struct {
	FriendshipID string    `json:"friendship_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFriends は承認済みの友達一覧を返す。
// GET /api/friends
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	h.listFriends(w, r, h.service.ListFriends)
}

// ListIncoming は自分宛ての申請一覧を返す。
// GET /api/friends/requests/incoming
func (h *FriendHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	h.listFriends(w, r, h.service.ListIncomingRequests)
}

// ListOutgoing は自分が送った申請一覧を返す。
// GET /api/friends/requests/outgoing
func (h *FriendHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	h.listFriends(w, r, h.service.ListOutgoingRequests)
}

func (h *FriendHandler) listFriends(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, userID string) ([]*model.Friend, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	friends, err := list(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]friendResponse, len(friends))
	for i, f := range friends {
		resp[i] = friendResponse{
			FriendshipID: f.FriendshipID,
			UserID:       f.UserID,
			Username:     f.Username,
			Status:       string(f.Status),
			CreatedAt:    f.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendRequest は友達申請を送る。
// POST /api/friends/requests
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req friendRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.FriendID != "" {
		if _, err := uuid.Parse(req.FriendID); err != nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
			return
		}
	}

	f, err := h.service.SendRequest(r.Context(), userID, req.FriendID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFriendshipResponse(f))
}

// AcceptRequest は申請を承認する。申請先のユーザーのみ実行できる。
// POST /api/friends/requests/{id}/accept
func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id, ok := pathUUID(w, r, model.NewFriendshipNotFoundError)
	if !ok {
		return
	}

	f, err := h.service.AcceptRequest(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFriendshipResponse(f))
}

// RejectRequest は申請中のエッジを削除する（拒否または取り下げ）。
// DELETE /api/friends/requests/{id}
func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id, ok := pathUUID(w, r, model.NewFriendshipNotFoundError)
	if !ok {
		return
	}

	if err := h.service.RejectRequest(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFriend は承認済みの友達関係を解除する。
// DELETE /api/friends/{id}
func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id, ok := pathUUID(w, r, model.NewFriendshipNotFoundError)
	if !ok {
		return
	}

	if err := h.service.RemoveFriend(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchUsers はユーザー名の部分一致で検索する。自分自身は含まない。
// GET /api/users/search?q=
func (h *FriendHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	users, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = userResponse{ID: u.ID, Username: u.Username}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toFriendshipResponse(f *model.Friendship) friendshipResponse {
	return friendshipResponse{
		ID:          f.ID,
		RequesterID: f.RequesterID,
		AddresseeID: f.AddresseeID,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
	}
}
