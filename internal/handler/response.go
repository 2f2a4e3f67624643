package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/repository"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeJSON はリクエストボディをデコードする。失敗時はINVALID_REQUESTを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requireUserID はコンテキストからユーザーIDを取得する。未認証なら401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return "", false
	}
	return userID, true
}

// pathUUID はURLパスの{id}を正規化したUUID文字列で返す。
// UUIDとして解釈できない場合はnotFoundのエラーを書き込みfalseを返す。
func pathUUID(w http.ResponseWriter, r *http.Request, notFound func(id string) *model.APIError) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.WriteAPIError(w, notFound(raw))
		return "", false
	}
	return id.String(), true
}

// optionalUserID は任意認証ルートで閲覧者のユーザーIDを返す。未ログインなら空文字。
func optionalUserID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	// トークンは有効でもプロフィール行がない利用者は未認証として扱う
	if errors.Is(err, repository.ErrUnknownUser) {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// --- 共通レスポンス型 ---

// showSummaryResponse はフィードや日記に埋め込む演目の要約。
type showSummaryResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	PhotoURL string `json:"photo_url"`
}

func toShowSummaryResponse(s model.ShowSummary) showSummaryResponse {
	return showSummaryResponse{ID: s.ID, Title: s.Title, PhotoURL: s.PhotoURL}
}

// ratingResponse は平均評価のレスポンス。評価がない場合averageはnull。
type ratingResponse struct {
	Average *float64 `json:"average"`
	Count   int      `json:"count"`
}

func toRatingResponse(s model.RatingSummary) ratingResponse {
	return ratingResponse{Average: s.Average, Count: s.Count}
}

// reactionCountsResponse はリアクション種別ごとの件数。
type reactionCountsResponse struct {
	Like int `json:"like"`
	Love int `json:"love"`
	Clap int `json:"clap"`
}

func toReactionCountsResponse(c model.ReactionCounts) reactionCountsResponse {
	return reactionCountsResponse{Like: c.Like, Love: c.Love, Clap: c.Clap}
}

// userResponse は公開プロフィール。
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// dateLayout は観劇日の入出力形式。
const dateLayout = "2006-01-02"

// formatDate は日付をYYYY-MM-DD形式で返す。nilならnil。
func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
