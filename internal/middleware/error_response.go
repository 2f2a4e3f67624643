package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/stagelog/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はエラーコードごとのHTTPステータス。未登録のコードは500。
var statusByCode = map[string]int{
	model.ErrCodeValidationFailed:   http.StatusBadRequest,
	model.ErrCodeInvalidRequest:     http.StatusBadRequest,
	model.ErrCodeDuplicateTitle:     http.StatusConflict,
	model.ErrCodeDuplicateEntry:     http.StatusConflict,
	model.ErrCodeDuplicateRequest:   http.StatusConflict,
	model.ErrCodeInvalidTransition:  http.StatusConflict,
	model.ErrCodeAuthRequired:       http.StatusUnauthorized,
	model.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	model.ErrCodeForbidden:          http.StatusForbidden,
	model.ErrCodeCSRFInvalid:        http.StatusForbidden,
	model.ErrCodeSSRFBlocked:        http.StatusForbidden,
	model.ErrCodeShowNotFound:       http.StatusNotFound,
	model.ErrCodeEntryNotFound:      http.StatusNotFound,
	model.ErrCodeActivityNotFound:   http.StatusNotFound,
	model.ErrCodeFriendshipNotFound: http.StatusNotFound,
	model.ErrCodeUserNotFound:       http.StatusNotFound,
	model.ErrCodeReviewNotFound:     http.StatusNotFound,
	model.ErrCodeImportFailed:       http.StatusBadGateway,
	model.ErrCodeRateLimited:        http.StatusTooManyRequests,
	model.ErrCodeInternal:           http.StatusInternalServerError,
}

// StatusFor はAPIErrorに対応するHTTPステータスを返す。
func StatusFor(apiErr *model.APIError) int {
	if apiErr == nil {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーコードから決まるステータスで統一エラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusFor(apiErr), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// apiErrがnilの場合は内部エラーとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		apiErr = model.NewInternalError()
		statusCode = http.StatusInternalServerError
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write error response",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
