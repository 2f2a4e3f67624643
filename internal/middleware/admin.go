package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/stagelog/internal/model"
)

// RoleChecker は管理者ロールの判定に必要なインターフェース。
type RoleChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// NewAdminMiddleware は管理者ロールを持つユーザーのみを通すミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func NewAdminMiddleware(checker RoleChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewAuthRequiredError())
				return
			}

			ok, err := checker.IsAdmin(r.Context(), userID)
			if err != nil {
				slog.Error("failed to check admin role",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !ok {
				WriteAPIError(w, model.NewForbiddenError("管理者権限が必要です"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
