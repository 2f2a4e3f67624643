package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/stagelog/internal/engagement"
	"github.com/hitoshi/stagelog/internal/model"
)

// EngagementServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type EngagementServiceInterface interface {
	ListRecentActivity(ctx context.Context, viewerID string, q engagement.FeedQuery) ([]*model.FeedItem, error)
	React(ctx context.Context, activityID, userID string, reactionType model.ReactionType) (*engagement.ReactResult, error)
	ReactionCounts(ctx context.Context, activityID string) (model.ReactionCounts, error)
	Comment(ctx context.Context, activityID, userID, text string) (*model.Comment, error)
	ListComments(ctx context.Context, activityID string) ([]*model.Comment, error)
}

// ActivityHandler はアクティビティフィードとリアクション・コメントのHTTPハンドラー。
type ActivityHandler struct {
	service EngagementServiceInterface
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(service EngagementServiceInterface) *ActivityHandler {
	return &ActivityHandler{service: service}
}

type reactRequest struct {
	ReactionType string `json:"reaction_type"`
}

type commentRequest struct {
	CommentText string `json:"comment_text"`
}

// activityDetailResponse はアクティビティ種別ごとの詳細。
// 記録が削除済みの場合はavailable=falseとなり他の項目は空になる。
type activityDetailResponse struct {
	Available     bool     `json:"available"`
	City          string   `json:"city,omitempty"`
	DateSeen      *string  `json:"date_seen,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Review        string   `json:"review,omitempty"`
	SpoilerHidden bool     `json:"spoiler_hidden,omitempty"`
}

type activityResponse struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Username     string                 `json:"username"`
	ActivityType string                 `json:"activity_type"`
	Show         showSummaryResponse    `json:"show"`
	Detail       activityDetailResponse `json:"detail"`
	Reactions    reactionCountsResponse `json:"reactions"`
	CreatedAt    time.Time              `json:"created_at"`
}

type reactResponse struct {
	ReactionType *string                `json:"reaction_type"`
	Reactions    reactionCountsResponse `json:"reactions"`
}

type commentResponse struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	CommentText string    `json:"comment_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListActivities は新しい順のアクティビティフィードを返す。
// GET /api/activities?limit=&scope=all|friends
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := engagement.FeedQuery{Scope: engagement.FeedScope(r.URL.Query().Get("scope"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit", "0以上の整数で指定してください"))
			return
		}
		q.Limit = limit
	}

	items, err := h.service.ListRecentActivity(r.Context(), userID, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]activityResponse, len(items))
	for i, item := range items {
		resp[i] = toActivityResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// React はリアクションを切り替える。同じ種別の再送信で取り消しになる。
// PUT /api/activities/{id}/reaction
func (h *ActivityHandler) React(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req reactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, ok := pathUUID(w, r, model.NewActivityNotFoundError)
	if !ok {
		return
	}

	result, err := h.service.React(r.Context(), id, userID, model.ReactionType(req.ReactionType))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := reactResponse{Reactions: toReactionCountsResponse(result.Counts)}
	if result.Reaction != nil {
		t := string(result.Reaction.ReactionType)
		resp.ReactionType = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetReactions はリアクション種別ごとの件数を返す。
// GET /api/activities/{id}/reactions
func (h *ActivityHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewActivityNotFoundError)
	if !ok {
		return
	}

	counts, err := h.service.ReactionCounts(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReactionCountsResponse(counts))
}

// ListComments はコメントを古い順に返す。
// GET /api/activities/{id}/comments
func (h *ActivityHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewActivityNotFoundError)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, len(comments))
	for i, c := range comments {
		resp[i] = toCommentResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddComment はコメントを投稿する。
// POST /api/activities/{id}/comments
func (h *ActivityHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, ok := pathUUID(w, r, model.NewActivityNotFoundError)
	if !ok {
		return
	}

	comment, err := h.service.Comment(r.Context(), id, userID, req.CommentText)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func toActivityResponse(item *model.FeedItem) activityResponse {
	return activityResponse{
		ID:           item.ID,
		UserID:       item.UserID,
		Username:     item.Username,
		ActivityType: string(item.ActivityType),
		Show:         toShowSummaryResponse(item.Show),
		Detail:       toActivityDetailResponse(item.Detail),
		Reactions:    toReactionCountsResponse(item.Counts),
		CreatedAt:    item.CreatedAt,
	}
}

func toActivityDetailResponse(d model.ActivityDetail) activityDetailResponse {
	switch d := d.(type) {
	case model.SeenDetail:
		return activityDetailResponse{
			Available: d.Available,
			City:      d.City,
			DateSeen:  formatDate(d.DateSeen),
			Rating:    d.Rating,
		}
	case model.ReviewDetail:
		return activityDetailResponse{
			Available:     d.Available,
			City:          d.City,
			DateSeen:      formatDate(d.DateSeen),
			Rating:        d.Rating,
			Review:        d.Review,
			SpoilerHidden: d.SpoilerHidden,
		}
	case model.WantToSeeDetail:
		return activityDetailResponse{Available: d.Available}
	default:
		return activityDetailResponse{}
	}
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:          c.ID,
		ActivityID:  c.ActivityID,
		UserID:      c.UserID,
		Username:    c.Username,
		CommentText: c.CommentText,
		CreatedAt:   c.CreatedAt,
	}
}
