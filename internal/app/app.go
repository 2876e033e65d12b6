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
	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdrop/internal/channel"
	"github.com/hitoshi/newsdrop/internal/config"
	"github.com/hitoshi/newsdrop/internal/database"
	"github.com/hitoshi/newsdrop/internal/dispatch"
	"github.com/hitoshi/newsdrop/internal/handler"
	"github.com/hitoshi/newsdrop/internal/logger"
	"github.com/hitoshi/newsdrop/internal/mailer"
	"github.com/hitoshi/newsdrop/internal/metrics"
	"github.com/hitoshi/newsdrop/internal/middleware"
	"github.com/hitoshi/newsdrop/internal/news"
	"github.com/hitoshi/newsdrop/internal/repository"
	"github.com/hitoshi/newsdrop/internal/security"
	"github.com/hitoshi/newsdrop/internal/subscriber"
	"github.com/hitoshi/newsdrop/internal/worker/cleanup"
)

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
	cmd := ParseCommand(args)

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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// dispatchPipeline は配信パスの実行に必要な依存一式。
// APIサーバー（手動トリガー用）とワーカー（ティックループ用）の
// 両方が同じワイヤリングを使う。
type dispatchPipeline struct {
	scheduler *dispatch.Scheduler
	registry  *channel.Registry
	guard     security.EndpointGuardService
	promReg   *prometheus.Registry
}

// buildDispatchPipeline は配信パイプラインの依存関係をワイヤリングする。
func buildDispatchPipeline(
	cfg *config.Config,
	subRepo repository.SubscriberRepository,
	channelRepo repository.ChannelRepository,
	itemRepo repository.ItemRepository,
	deliveryRepo repository.DeliveryRepository,
) *dispatchPipeline {
	guard := security.NewEndpointGuard()
	sanitizer := security.NewContentSanitizer()

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	// コンテンツ取得（News API + RSS）
	fetchClient := guard.NewSafeClient(cfg.FetchTimeout)
	apiClient := news.NewAPIClient(
		fetchClient, slog.Default(),
		cfg.NewsAPIKey, cfg.NewsAPIURL, cfg.FetchMaxItems,
	)
	rssFetcher := news.NewRSSFetcher(
		fetchClient, guard, slog.Default(),
		cfg.FeedURLs, cfg.FetchMaxSize,
	)
	provider := news.NewProvider(apiClient, rssFetcher, sanitizer, itemRepo, slog.Default())

	// 送信チャネル: メール + Webhook系アダプタ
	var email channel.Adapter
	if cfg.SMTPConfigured() {
		sender := mailer.NewSMTPSender(
			cfg.SMTPHost, cfg.SMTPPort,
			cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom,
		)
		email = channel.NewEmailAdapter(sender)
	} else {
		slog.Warn("SMTP設定が未指定のため、メール送信は失敗として記録されます")
	}
	registry := channel.NewDefaultRegistry(guard.NewSafeClient(cfg.SendTimeout))

	dispatcher := dispatch.NewDispatcher(
		subRepo, channelRepo, deliveryRepo,
		email, registry, collector, slog.Default(),
		cfg.DispatchMaxWorkers, cfg.SendTimeout,
	)
	resolver := dispatch.NewResolver(slog.Default(), cfg.DefaultTimezone)
	scheduler := dispatch.NewScheduler(
		subRepo, resolver, provider, dispatcher, collector, slog.Default(),
	)

	return &dispatchPipeline{
		scheduler: scheduler,
		registry:  registry,
		guard:     guard,
		promReg:   promReg,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	subRepo := repository.NewPostgresSubscriberRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	deliveryRepo := repository.NewPostgresDeliveryRepo(db)

	// 3. 配信パイプラインのワイヤリング（手動トリガーAPI用）
	pipeline := buildDispatchPipeline(cfg, subRepo, channelRepo, itemRepo, deliveryRepo)

	// 4. ドメインサービスの初期化
	subService := subscriber.NewService(subRepo, slog.Default())
	chService := channel.NewService(
		channelRepo, subRepo, pipeline.guard, pipeline.registry,
		slog.Default(), cfg.SendTimeout,
	)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rateLimitPerSecond(cfg.RateLimitGeneral)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),

		SubscriberService: subService,
		ChannelService:    chService,
		ItemLister:        itemRepo,
		DeliveryLister:    deliveryRepo,
		DispatchRunner:    pipeline.scheduler,
		SubscriberCounter: subRepo,
		DeliveryCounter:   deliveryRepo,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、分単位ティックの配信スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	subRepo := repository.NewPostgresSubscriberRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	deliveryRepo := repository.NewPostgresDeliveryRepo(db)

	// 3. 配信パイプラインのワイヤリング
	pipeline := buildDispatchPipeline(cfg, subRepo, channelRepo, itemRepo, deliveryRepo)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(itemRepo, deliveryRepo, slog.Default())
	if cfg.DeliveryRetentionDays > 0 {
		cleanupJob.DeliveryRetentionDays = cfg.DeliveryRetentionDays
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Int("max_workers", cfg.DispatchMaxWorkers),
	)

	// メトリクスサーバーをバックグラウンドで起動
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(pipeline.promReg),
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, 24*time.Hour)

	// 配信スケジューラをメインgoroutineで実行（ブロッキング）
	pipeline.scheduler.Start(ctx, cfg.TickInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// rateLimitPerSecond はreq/min単位の設定値をreq/sec単位のレートに変換する。
func rateLimitPerSecond(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
