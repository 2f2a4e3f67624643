// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/stagelog/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// TokenVerifier はBearerトークンを検証し、対応するセッションを返す。
// 無効なトークンの場合はエラーを返す。
type TokenVerifier interface {
	VerifyToken(token string) (*model.Session, error)
}

// NewSessionMiddleware はCookieまたはBearerトークンからセッションを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401 AUTH_REQUIREDを返す。
func NewSessionMiddleware(finder SessionFinder, verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := resolveSession(r, finder, verifier)
			if session == nil {
				WriteAPIError(w, model.NewAuthRequiredError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// NewOptionalSessionMiddleware はセッションがあればコンテキストに注入し、
// なければそのまま次のハンドラーへ渡すミドルウェアを返す。公開読み取りAPI用。
func NewOptionalSessionMiddleware(finder SessionFinder, verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session := resolveSession(r, finder, verifier); session != nil {
				r = r.WithContext(ContextWithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveSession はBearerトークンを優先し、なければCookieからセッションを解決する。
func resolveSession(r *http.Request, finder SessionFinder, verifier TokenVerifier) *model.Session {
	if token, ok := BearerToken(r); ok {
		if verifier == nil {
			return nil
		}
		session, err := verifier.VerifyToken(token)
		if err != nil {
			slog.Warn("bearer token rejected",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return session
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	session, err := finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return session
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// ログ用のリクエスト情報があればユーザーIDも記録する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = session.UserID
		info.authSource = session.Source
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// ContextWithUserID はユーザーIDのみを持つセッションをコンテキストに注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, &model.Session{ID: userID, UserID: userID})
}
