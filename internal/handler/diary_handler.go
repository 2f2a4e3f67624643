package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/stagelog/internal/diary"
	"github.com/hitoshi/stagelog/internal/model"
)

// DiaryServiceInterface は観劇記録ハンドラーが必要とするサービスインターフェース。
type DiaryServiceInterface interface {
	MarkSeen(ctx context.Context, userID, showID string, in diary.MarkSeenInput) (*model.UserShowEntry, error)
	MarkWantToSee(ctx context.Context, userID, showID string) (*model.UserShowEntry, error)
	UpdateDiaryEntry(ctx context.Context, userID, entryID string, in diary.UpdateDiaryInput) (*model.UserShowEntry, error)
	DeleteDiaryEntry(ctx context.Context, userID, entryID string) error
	ListDiary(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error)
	ListMyShows(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error)
}

// DiaryHandler は観劇記録と日記のHTTPハンドラー。
type DiaryHandler struct {
	service DiaryServiceInterface
}

// NewDiaryHandler はDiaryHandlerを生成する。
func NewDiaryHandler(service DiaryServiceInterface) *DiaryHandler {
	return &DiaryHandler{service: service}
}

type markSeenRequest struct {
	DateSeen         string  `json:"date_seen"`
	City             string  `json:"city"`
	Rating           float64 `json:"rating"`
	Review           string  `json:"review"`
	PrivateNotes     string  `json:"private_notes"`
	IsAnonymous      bool    `json:"is_anonymous"`
	ContainsSpoilers bool    `json:"contains_spoilers"`
}

type updateDiaryRequest struct {
	Rating           float64 `json:"rating"`
	Review           string  `json:"review"`
	PrivateNotes     string  `json:"private_notes"`
	ContainsSpoilers bool    `json:"contains_spoilers"`
}

// entryResponse は本人向けの記録レスポンス。private_notesを含む。
type entryResponse struct {
	ID               string               `json:"id"`
	ShowID           string               `json:"show_id"`
	Status           string               `json:"status"`
	DateSeen         *string              `json:"date_seen"`
	City             string               `json:"city"`
	Rating           *float64             `json:"rating"`
	Review           string               `json:"review"`
	PrivateNotes     string               `json:"private_notes"`
	IsAnonymous      bool                 `json:"is_anonymous"`
	ContainsSpoilers bool                 `json:"contains_spoilers"`
	Show             *showSummaryResponse `json:"show,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// MarkSeen は演目を観劇済みとして記録する。
// POST /api/shows/{id}/seen
func (h *DiaryHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req markSeenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dateSeen, err := time.Parse(dateLayout, req.DateSeen)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("date_seen", "YYYY-MM-DD形式で指定してください"))
		return
	}

	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	entry, err := h.service.MarkSeen(r.Context(), userID, id, diary.MarkSeenInput{
		DateSeen:         dateSeen,
		City:             req.City,
		Rating:           req.Rating,
		Review:           req.Review,
		PrivateNotes:     req.PrivateNotes,
		IsAnonymous:      req.IsAnonymous,
		ContainsSpoilers: req.ContainsSpoilers,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry, nil))
}

// MarkWantToSee は演目を観たいリストに追加する。
// POST /api/shows/{id}/want-to-see
func (h *DiaryHandler) MarkWantToSee(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id, ok := pathUUID(w, r, model.NewShowNotFoundError)
	if !ok {
		return
	}

	entry, err := h.service.MarkWantToSee(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry, nil))
}

// UpdateEntry は観劇記録の日記フィールドを更新する。
// PATCH /api/entries/{id}
func (h *DiaryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateDiaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, ok := pathUUID(w, r, model.NewEntryNotFoundError)
	if !ok {
		return
	}

	entry, err := h.service.UpdateDiaryEntry(r.Context(), userID, id, diary.UpdateDiaryInput{
		Rating:           req.Rating,
		Review:           req.Review,
		PrivateNotes:     req.PrivateNotes,
		ContainsSpoilers: req.ContainsSpoilers,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry, nil))
}

// DeleteEntry は記録を削除する。アクティビティは残る。
// DELETE /api/entries/{id}
func (h *DiaryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id, ok := pathUUID(w, r, model.NewEntryNotFoundError)
	if !ok {
		return
	}

	if err := h.service.DeleteDiaryEntry(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDiary は観劇日記を返す。
// GET /api/me/diary?date=YYYY-MM-DD
func (h *DiaryHandler) ListDiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var date *time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("date", "YYYY-MM-DD形式で指定してください"))
			return
		}
		date = &d
	}

	entries, err := h.service.ListDiary(r.Context(), userID, date)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiaryResponses(entries))
}

// ListMyShows は観た・観たいリストを返す。
// GET /api/me/shows?status=seen|want_to_see
func (h *DiaryHandler) ListMyShows(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	status := model.EntryStatus(r.URL.Query().Get("status"))
	entries, err := h.service.ListMyShows(r.Context(), userID, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiaryResponses(entries))
}

func toEntryResponse(e *model.UserShowEntry, show *model.ShowSummary) entryResponse {
	resp := entryResponse{
		ID:               e.ID,
		ShowID:           e.ShowID,
		Status:           string(e.Status),
		DateSeen:         formatDate(e.DateSeen),
		City:             e.City,
		Rating:           e.Rating,
		Review:           e.Review,
		PrivateNotes:     e.PrivateNotes,
		IsAnonymous:      e.IsAnonymous,
		ContainsSpoilers: e.ContainsSpoilers,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if show != nil {
		s := toShowSummaryResponse(*show)
		resp.Show = &s
	}
	return resp
}

func toDiaryResponses(entries []*model.DiaryEntry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(&e.UserShowEntry, &e.Show)
	}
	return out
}
