package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/stagelog/internal/catalog"
	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/review"
)

// CatalogServiceInterface は演目ハンドラーが必要とするカタログサービスインターフェース。
type CatalogServiceInterface interface {
	SubmitShow(ctx context.Context, in catalog.SubmitShowInput, submitterID string) (*model.Show, error)
	ApproveShow(ctx context.Context, showID string) (*model.Show, error)
	RejectShow(ctx context.Context, showID string) (*model.Show, error)
	ListApprovedShows(ctx context.Context, search string) ([]*model.Show, error)
	ListPendingShows(ctx context.Context) ([]*model.Show, error)
	GetShow(ctx context.Context, viewerID, showID string) (*model.Show, error)
}

// ImporterInterface はフィードからの一括投稿インターフェース。
type ImporterInterface interface {
	ImportFeed(ctx context.Context, feedURL, adminID string) (*catalog.ImportResult, error)
}

// ReviewServiceInterface は公開レビューのサービスインターフェース。
type ReviewServiceInterface interface {
	GetReviewsForShow(ctx context.Context, sessionID, showID, city string) (*review.ReviewPage, error)
	AverageRating(ctx context.Context, showID string) (model.RatingSummary, error)
	ToggleReveal(ctx context.Context, sessionID, reviewID string) (review.Presented, error)
}

// ShowHandler は演目カタログと公開レビューのHTTPハンドラー。
type ShowHandler struct {
	catalog  CatalogServiceInterface
	importer ImporterInterface
	reviews  ReviewServiceInterface
}

// NewShowHandler はShowHandlerを生成する。
func NewShowHandler(catalog CatalogServiceInterface, importer ImporterInterface, reviews ReviewServiceInterface) *ShowHandler {
	return &ShowHandler{
		catalog:  catalog,
		importer: importer,
		reviews:  reviews,
	}
}

type submitShowRequest struct {
	Title       string `json:"title"`
	PhotoURL    string `json:"photo_url"`
	Description string `json:"description"`
}

type importRequest struct {
	URL string `json:"url"`
}

// showResponse は演目情報のAPIレスポンス。
type showResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	PhotoURL       string    `json:"photo_url"`
	Description    string    `json:"description"`
	ApprovalStatus string    `json:"approval_status"`
	CreatedAt      time.Time `json:"created_at"`
}

type importResponse struct {
	Submitted  int `json:"submitted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// reviewResponse は公開レビューのAPIレスポンス。
// spoiler_hiddenがtrueの場合reviewは省略する。
type reviewResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id,omitempty"`
	Username         string    `json:"username"`
	Rating           *float64  `json:"rating"`
	Review           string    `json:"review,omitempty"`
	City             string    `json:"city"`
	DateSeen         *string   `json:"date_seen"`
	IsAnonymous      bool      `json:"is_anonymous"`
	ContainsSpoilers bool      `json:"contains_spoilers"`
	SpoilerHidden    bool      `json:"spoiler_hidden"`
	CreatedAt        time.Time `json:"created_at"`
}

type reviewPageResponse struct {
	Reviews []reviewResponse `json:"reviews"`
	Rating  ratingResponse   `json:"rating"`
}

// ListShows は承認済み演目をタイトル順で返す。
// GET /api/shows?q=
func (h *ShowHandler) ListShows(w http.ResponseWriter, r *http.Request) {
	shows, err := h.catalog.ListApprovedShows(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShowResponses(shows))
}

// GetShow は演目詳細を返す。
// GET /api/shows/{id}
func (h *ShowHandler) GetShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	show, err := h.catalog.GetShow(r.Context(), optionalUserID(r), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShowResponse(show))
}

// SubmitShow は演目を承認待ちとして投稿する。
// POST /api/shows
func (h *ShowHandler) SubmitShow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req submitShowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	show, err := h.catalog.SubmitShow(r.Context(), catalog.SubmitShowInput{
		Title:       req.Title,
		PhotoURL:    req.PhotoURL,
		Description: req.Description,
	}, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShowResponse(show))
}

// ListReviews は演目の公開レビューと平均評価を返す。
// GET /api/shows/{id}/reviews?city=
func (h *ShowHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	page, err := h.reviews.GetReviewsForShow(r.Context(), viewerSessionID(r), id, r.URL.Query().Get("city"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := reviewPageResponse{
		Reviews: make([]reviewResponse, len(page.Reviews)),
		Rating:  toRatingResponse(page.Rating),
	}
	for i, p := range page.Reviews {
		resp.Reviews[i] = toReviewResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRating は演目の平均評価を返す。
// GET /api/shows/{id}/rating
func (h *ShowHandler) GetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	summary, err := h.reviews.AverageRating(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingResponse(summary))
}

// ToggleReveal は閲覧セッションでのネタバレ表示を切り替える。
// POST /api/reviews/{id}/reveal
func (h *ShowHandler) ToggleReveal(w http.ResponseWriter, r *http.Request) {
	sessionID := viewerSessionID(r)
	if sessionID == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	id, ok := pathUUID(w, r, model.NewReviewNotFoundError)
	if !ok {
		return
	}

	p, err := h.reviews.ToggleReveal(r.Context(), sessionID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(p))
}

// ListPending は承認待ちの演目を返す。
// GET /api/admin/shows/pending
func (h *ShowHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	shows, err := h.catalog.ListPendingShows(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShowResponses(shows))
}

// Approve は演目を承認する。
// POST /api/admin/shows/{id}/approve
func (h *ShowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	show, err := h.catalog.ApproveShow(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShowResponse(show))
}

// Reject は演目を却下する。
// POST /api/admin/shows/{id}/reject
func (h *ShowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	show, err := h.catalog.RejectShow(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShowResponse(show))
}

// Import はRSS/Atomフィードから演目を一括投稿する。
// POST /api/admin/imports
func (h *ShowHandler) Import(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("url", "必須です"))
		return
	}

	result, err := h.importer.ImportFeed(r.Context(), req.URL, adminID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		Submitted:  result.Submitted,
		Duplicates: result.Duplicates,
		Skipped:    result.Skipped,
	})
}

// --- ヘルパー関数 ---

// viewerSessionID はネタバレ表示状態のキーとなるセッションIDを返す。未ログインなら空文字。
func viewerSessionID(r *http.Request) string {
	if s, ok := middleware.SessionFromContext(r.Context()); ok {
		return s.ID
	}
	return ""
}

func toShowResponse(show *model.Show) showResponse {
	return showResponse{
		ID:             show.ID,
		Title:          show.Title,
		PhotoURL:       show.PhotoURL,
		Description:    show.Description,
		ApprovalStatus: string(show.ApprovalStatus),
		CreatedAt:      show.CreatedAt,
	}
}

func toShowResponses(shows []*model.Show) []showResponse {
	out := make([]showResponse, len(shows))
	for i, s := range shows {
		out[i] = toShowResponse(s)
	}
	return out
}

func toReviewResponse(p review.Presented) reviewResponse {
	return reviewResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		Username:         p.Username,
		Rating:           p.Rating,
		Review:           p.Review,
		City:             p.City,
		DateSeen:         formatDate(p.DateSeen),
		IsAnonymous:      p.IsAnonymous,
		ContainsSpoilers: p.ContainsSpoilers,
		SpoilerHidden:    p.SpoilerHidden,
		CreatedAt:        p.CreatedAt,
	}
}
