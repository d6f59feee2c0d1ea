package app

import (
	"context"
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

	"github.com/hitoshi/stockroom/internal/auth"
	"github.com/hitoshi/stockroom/internal/catalog"
	"github.com/hitoshi/stockroom/internal/config"
	"github.com/hitoshi/stockroom/internal/database"
	"github.com/hitoshi/stockroom/internal/handler"
	"github.com/hitoshi/stockroom/internal/identity"
	"github.com/hitoshi/stockroom/internal/logger"
	"github.com/hitoshi/stockroom/internal/metrics"
	"github.com/hitoshi/stockroom/internal/middleware"
	"github.com/hitoshi/stockroom/internal/repository"
	"github.com/hitoshi/stockroom/internal/upload"
	"github.com/hitoshi/stockroom/internal/user"
	"github.com/hitoshi/stockroom/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンで処理中のリクエストを待つ上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandInitAdmin:
		return runInitAdmin(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
// ハンドラー内でpanicが発生した場合も応答後にシャットダウンし、エラーを返す。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	errs := middleware.NewErrorNormalizer(middleware.ModeForEnvironment(cfg.Environment), slog.Default())

	var verifier *auth.TokenVerifier
	if cfg.IdentityJWTSecret != "" {
		verifier = auth.NewTokenVerifier([]byte(cfg.IdentityJWTSecret))
		slog.Info("bearer token identity enabled")
	}

	resolver := identity.NewResolver(userRepo, cfg.AdminEmail, collector)
	userService := user.NewService(userRepo, cfg.UsersPageLimitMax)
	productService := catalog.NewService(productRepo, collector)

	images, err := upload.NewLocalImageStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}

	if cfg.ImageCleanupIntervalHours > 0 {
		job := cleanup.NewCleanupJob(productRepo, images.Dir(), slog.Default())
		go job.Start(ctx, time.Duration(cfg.ImageCleanupIntervalHours)*time.Hour)
	}

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitPerHour > 0 {
		rateLimiterCfg.Requests = cfg.RateLimitPerHour
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, errs)
	defer rateLimiter.Stop()

	fatal := make(chan any, 1)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Errors:            errs,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.Environment == "production",
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		OnFatal: func(rec any) {
			select {
			case fatal <- rec:
			default:
			}
		},

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		ClaimsExtractor: auth.NewExtractor(verifier),
		Resolver:        resolver,

		UserService: userService,

		ProductService: productService,
		Images:         images,
		ImageDir:       images.Dir(),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down API server...")
	case rec := <-fatal:
		runErr = fmt.Errorf("unrecoverable panic in request handler: %v", rec)
		slog.Error("shutting down API server after panic", slog.Any("panic", rec))
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return runErr
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runInitAdmin はADMIN_EMAILと一致する有効なユーザーを管理者に昇格する。
func runInitAdmin(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	service := user.NewService(repository.NewPostgresUserRepo(db), cfg.UsersPageLimitMax)
	promoted, err := service.PromoteAdmin(ctx, cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("admin initialization failed: %w", err)
	}

	slog.Info("admin user initialized",
		slog.String("email", cfg.AdminEmail),
		slog.Int64("modified_count", promoted),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/api/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
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
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
