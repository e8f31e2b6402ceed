package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/photoroom/internal/config"
	"github.com/hitoshi/photoroom/internal/database"
	"github.com/hitoshi/photoroom/internal/handler"
	"github.com/hitoshi/photoroom/internal/identity"
	"github.com/hitoshi/photoroom/internal/logger"
	"github.com/hitoshi/photoroom/internal/metrics"
	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/photo"
	"github.com/hitoshi/photoroom/internal/realtime"
	"github.com/hitoshi/photoroom/internal/repository"
	"github.com/hitoshi/photoroom/internal/room"
	"github.com/hitoshi/photoroom/internal/security"
	"github.com/hitoshi/photoroom/internal/telemetry"
	"github.com/hitoshi/photoroom/internal/upload"
	"github.com/hitoshi/photoroom/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから、環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newMetricsRegistry はランタイムとプロセスのメトリクスを含むレジストリと、
// アプリケーションのCollectorを生成する。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig は設定値（req/min）からレート制限の設定を組み立てる。
// バーストは1分あたりの上限と同じにする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitUpload > 0 {
		rl.UploadRate = middleware.PerMinute(cfg.RateLimitUpload)
		rl.UploadBurst = cfg.RateLimitUpload
	}
	if cfg.RateLimitRoomCreate > 0 {
		rl.RoomCreateRate = middleware.PerMinute(cfg.RateLimitRoomCreate)
		rl.RoomCreateBurst = cfg.RateLimitRoomCreate
	}
	return rl
}

// validateEndpoints は外部エンドポイントの設定を起動時に検証する。
func validateEndpoints(guard security.SSRFGuardService, cfg *config.Config) error {
	if err := guard.ValidateURL(cfg.UploadEndpoint); err != nil {
		return fmt.Errorf("invalid UPLOAD_ENDPOINT: %w", err)
	}
	if err := guard.ValidateURL(cfg.QREndpoint); err != nil {
		return fmt.Errorf("invalid QR_ENDPOINT: %w", err)
	}
	return nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	var guard security.SSRFGuardService = security.NewSSRFGuard()
	if err := validateEndpoints(guard, cfg); err != nil {
		return err
	}

	// 1. トレース
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEnabled, cfg.OTelEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", slog.String("error", err.Error()))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. メトリクス
	registry, collector := newMetricsRegistry()

	// 4. リポジトリ
	roomRepo := repository.NewPostgresRoomRepo(db)
	photoRepo := repository.NewPostgresPhotoRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 5. 写真の変更通知（LISTEN/NOTIFY → ブローカー）
	broker := realtime.NewBroker(collector)
	listener, err := realtime.NewPostgresListener(cfg.DatabaseURL, broker, logger.Component("realtime"))
	if err != nil {
		return fmt.Errorf("failed to start change listener: %w", err)
	}
	defer listener.Close()
	go listener.Run(ctx)

	// 6. ドメインサービス
	directory := room.NewDirectory(roomRepo, nil, collector, logger.Component("room"))
	store := photo.NewStore(photoRepo, broker, collector, logger.Component("photo"))
	relay := upload.NewRelay(
		guard.NewSafeClient(cfg.UploadTimeout),
		cfg.UploadEndpoint, cfg.UploadPreset,
		collector, logger.Component("upload"),
	)
	identities := identity.NewService(sessionRepo, identity.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	// 7. ルーター
	// ライブ配信はサーバー停止の開始時に閉じる。通常のリクエストはShutdownで完了を待つ。
	liveCtx, stopLive := context.WithCancel(context.Background())
	defer stopLive()

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		IdentityProvider: identities,
		Cookie: middleware.CookieConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		Logger:            logger.Component("http"),

		HealthChecker: db,

		Rooms:          directory,
		Photos:         store,
		LiveStore:      store,
		LiveShutdown:   liveCtx,
		Uploader:       relay,
		Sanitizer:      security.NewTextSanitizer(),
		MaxUploadBytes: cfg.UploadMaxSize,
		Invite: handler.InviteConfig{
			BaseURL:    cfg.BaseURL,
			QREndpoint: cfg.QREndpoint,
		},

		IdentityResetter: identities,
	})

	// 8. HTTPサーバーの起動
	// WebSocket接続はハイジャック後に自前でデッドラインを設定する
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.UploadTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server.RegisterOnShutdown(stopLive)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れの匿名セッションを定期的に削除する。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, logger.Component("cleanup"))
	job.Start(ctx, cfg.CleanupInterval)

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

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	healthURL := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せてログ出力用の文字列にする。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
