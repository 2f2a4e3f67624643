package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/stagelog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler
	MetricsRecorder   middleware.HTTPMetricsRecorder
	SessionFinder     middleware.SessionFinder
	TokenVerifier     middleware.TokenVerifier
	RoleChecker       middleware.RoleChecker
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// カタログ・レビュー
	CatalogService CatalogServiceInterface
	Importer       ImporterInterface
	ReviewService  ReviewServiceInterface

	// 観劇記録
	DiaryService DiaryServiceInterface

	// フィード
	EngagementService EngagementServiceInterface

	// 友達
	FriendshipService FriendshipServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	  → Session(必須/任意) → CSRF → RateLimit(General)
//
// /health と /metrics はセッション・CSRF・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	showHandler := NewShowHandler(deps.CatalogService, deps.Importer, deps.ReviewService)
	diaryHandler := NewDiaryHandler(deps.DiaryService)
	activityHandler := NewActivityHandler(deps.EngagementService)
	friendHandler := NewFriendHandler(deps.FriendshipService)

	requireSession := middleware.NewSessionMiddleware(deps.SessionFinder, deps.TokenVerifier)
	optionalSession := middleware.NewOptionalSessionMiddleware(deps.SessionFinder, deps.TokenVerifier)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/signup", authHandler.SignUp)
		r.Post("/login", authHandler.Login)
		r.Post("/password/reset", authHandler.RequestPasswordReset)
		r.Put("/password", authHandler.UpdatePassword)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	// --- 公開読み取りルート（ログイン任意） ---
	r.Group(func(r chi.Router) {
		r.Use(optionalSession)
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/shows", showHandler.ListShows)
		r.Get("/api/shows/{id}", showHandler.GetShow)
		r.Get("/api/shows/{id}/reviews", showHandler.ListReviews)
		r.Get("/api/shows/{id}/rating", showHandler.GetRating)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/shows - 演目投稿（投稿専用レート制限を追加）
		r.With(deps.RateLimiter.SubmissionMiddleware()).Post("/api/shows", showHandler.SubmitShow)
		r.Post("/api/shows/{id}/seen", diaryHandler.MarkSeen)
		r.Post("/api/shows/{id}/want-to-see", diaryHandler.MarkWantToSee)

		r.Post("/api/reviews/{id}/reveal", showHandler.ToggleReveal)

		// 観劇記録
		r.Get("/api/me/diary", diaryHandler.ListDiary)
		r.Get("/api/me/shows", diaryHandler.ListMyShows)
		r.Route("/api/entries/{id}", func(r chi.Router) {
			r.Patch("/", diaryHandler.UpdateEntry)
			r.Delete("/", diaryHandler.DeleteEntry)
		})

		// フィード
		r.Route("/api/activities", func(r chi.Router) {
			r.Get("/", activityHandler.ListActivities)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/reaction", activityHandler.React)
				r.Get("/reactions", activityHandler.GetReactions)
				r.Get("/comments", activityHandler.ListComments)
				r.Post("/comments", activityHandler.AddComment)
			})
		})

		// 友達
		r.Route("/api/friends", func(r chi.Router) {
			r.Get("/", friendHandler.ListFriends)
			r.Delete("/{id}", friendHandler.RemoveFriend)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", friendHandler.SendRequest)
				r.Get("/incoming", friendHandler.ListIncoming)
				r.Get("/outgoing", friendHandler.ListOutgoing)
				r.Post("/{id}/accept", friendHandler.AcceptRequest)
				r.Delete("/{id}", friendHandler.RejectRequest)
			})
		})

		r.Get("/api/users/search", friendHandler.SearchUsers)

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.RoleChecker))

			r.Get("/shows/pending", showHandler.ListPending)
			r.Post("/shows/{id}/approve", showHandler.Approve)
			r.Post("/shows/{id}/reject", showHandler.Reject)
			r.Post("/imports", showHandler.Import)
		})
	})

	return r
}
