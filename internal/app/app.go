package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/stagelog/internal/auth"
	"github.com/hitoshi/stagelog/internal/catalog"
	"github.com/hitoshi/stagelog/internal/config"
	"github.com/hitoshi/stagelog/internal/database"
	"github.com/hitoshi/stagelog/internal/diary"
	"github.com/hitoshi/stagelog/internal/engagement"
	"github.com/hitoshi/stagelog/internal/friendship"
	"github.com/hitoshi/stagelog/internal/handler"
	"github.com/hitoshi/stagelog/internal/logger"
	"github.com/hitoshi/stagelog/internal/metrics"
	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/notification"
	"github.com/hitoshi/stagelog/internal/repository"
	"github.com/hitoshi/stagelog/internal/review"
	"github.com/hitoshi/stagelog/internal/security"
	"github.com/hitoshi/stagelog/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		writeUsage(w)
		return err
	}
	if cmd == CommandHelp {
		writeUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", cmd.String()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	showRepo := repository.NewPostgresShowRepo(db)
	entryRepo := repository.NewPostgresUserShowRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	reactionRepo := repository.NewPostgresReactionRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	friendshipRepo := repository.NewPostgresFriendshipRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 通知とキャッシュ（いずれも未設定なら無効）
	notifier, closeNotifier := buildNotifier(cfg, userRepo, collector)
	defer closeNotifier()

	catalogOpts := []catalog.Option{
		catalog.WithNotifier(notifier),
		catalog.WithMetrics(collector),
	}
	if cfg.RedisAddr != "" {
		client, err := catalog.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, catalog cache disabled", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			catalogOpts = append(catalogOpts, catalog.WithCache(catalog.NewRedisShowListCache(client, cfg.CatalogCacheTTL)))
			slog.Info("catalog cache enabled", slog.String("addr", cfg.RedisAddr))
		}
	}

	// 5. ドメインサービスの初期化
	authService := auth.NewService(
		auth.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey),
		userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	catalogService := catalog.NewService(showRepo, userRepo, sanitizer, catalogOpts...)
	importer := catalog.NewImporter(catalogService, ssrfGuard, cfg.ImportTimeout, cfg.ImportMaxSize)

	reveals := review.NewRevealStore(cfg.RevealIdleTTL)
	defer reveals.Stop()
	go reveals.Run(ctx, revealSweepInterval(cfg.RevealIdleTTL))
	reviewService := review.NewService(reviewRepo, showRepo, reveals)

	diaryService := diary.NewService(entryRepo, showRepo, sanitizer, collector)
	engagementService := engagement.NewService(activityRepo, reactionRepo, commentRepo, friendshipRepo, sanitizer, collector)
	friendshipService := friendship.NewService(friendshipRepo, userRepo, collector)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubmission),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		MetricsRecorder:   collector,
		SessionFinder:     sessionRepo,
		TokenVerifier:     auth.NewJWTVerifier(cfg.SupabaseJWTSecret),
		RoleChecker:       authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CatalogService:    catalogService,
		Importer:          importer,
		ReviewService:     reviewService,
		DiaryService:      diaryService,
		EngagementService: engagementService,
		FriendshipService: friendshipService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildNotifier は設定に応じた通知経路を組み立てる。
// RabbitMQが設定されていればキューへ発行し、なければWebhookへ直接配送する。
// どちらも未設定なら通知しない。戻り値のfuncで接続を閉じる。
func buildNotifier(cfg *config.Config, recipients notification.RecipientResolver, m metrics.MetricsCollector) (notification.Notifier, func()) {
	if cfg.RabbitMQURL != "" {
		publisher, err := notification.NewAMQPPublisher(cfg.RabbitMQURL, cfg.NotificationQueue)
		if err == nil {
			slog.Info("notifications published to queue", slog.String("queue", cfg.NotificationQueue))
			return notification.NewBestEffort(publisher, m), func() { publisher.Close() }
		}
		slog.Warn("rabbitmq unavailable, falling back to direct delivery", slog.String("error", err.Error()))
	}

	if cfg.NotificationWebhookURL != "" {
		dispatcher := notification.NewWebhookDispatcher(cfg.NotificationWebhookURL, cfg.NotificationTimeout, recipients)
		slog.Info("notifications delivered directly to webhook")
		return notification.NewBestEffort(dispatcher, m), func() {}
	}

	slog.Info("notifications disabled")
	return notification.Discard{}, func() {}
}

// revealSweepInterval はネタバレ表示状態の掃除間隔を返す。
func revealSweepInterval(idleTTL time.Duration) time.Duration {
	interval := idleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除と、通知キューの購読を行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. クリーンアップジョブをバックグラウンドで実行
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.Bool("notification_consumer", cfg.RabbitMQURL != "" && cfg.NotificationWebhookURL != ""),
	)

	// 4. 通知キューの購読（ブロッキング）
	if cfg.RabbitMQURL != "" && cfg.NotificationWebhookURL != "" {
		dispatcher := notification.NewWebhookDispatcher(cfg.NotificationWebhookURL, cfg.NotificationTimeout, userRepo)
		consumer := notification.NewConsumer(cfg.RabbitMQURL, cfg.NotificationQueue, dispatcher, nil, slog.Default())
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("notification consumer failed: %w", err)
		}
	} else {
		<-ctx.Done()
	}

	slog.Info("shutting down worker...")
	<-done

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
