package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/cabinet/internal/apikey"
	"github.com/hitoshi/cabinet/internal/cabinet"
	"github.com/hitoshi/cabinet/internal/config"
	"github.com/hitoshi/cabinet/internal/credential"
	"github.com/hitoshi/cabinet/internal/database"
	"github.com/hitoshi/cabinet/internal/handler"
	"github.com/hitoshi/cabinet/internal/logger"
	"github.com/hitoshi/cabinet/internal/metrics"
	"github.com/hitoshi/cabinet/internal/middleware"
	"github.com/hitoshi/cabinet/internal/repository"
	"github.com/hitoshi/cabinet/internal/security"
	"github.com/hitoshi/cabinet/internal/slot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	defaultPort      = "3001"
	dbConnectTimeout = 5 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("falling back to info log level", slog.String("error", err.Error()))
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.needsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
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
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("slot_backend", cfg.SlotBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// backends は選択されたストレージバックエンドのリポジトリ群。
type backends struct {
	accounts repository.AccountRepository
	apiKeys  repository.APIKeyRepository
	slot     repository.SlotRepository
	health   map[string]handler.HealthChecker
	closers  []func() error
}

// Close は開いた接続をすべて閉じる。
func (b *backends) Close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			slog.Error("failed to close backend", slog.String("error", err.Error()))
		}
	}
}

// openBackends は設定に従ってレコードとスロットのバックエンドを開く。
// ファイルシステムを使う場合はストレージルートを作成する。
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{health: make(map[string]handler.HealthChecker, 2)}

	if !cfg.UsesPostgres() || !cfg.UsesMinio() {
		if err := repository.EnsureStorageRoot(cfg.StorageRoot); err != nil {
			return nil, err
		}
		slog.Info("storage root ready", slog.String("path", cfg.StorageRoot))
	}

	// アカウントとAPIキー
	if cfg.UsesPostgres() {
		var db *sql.DB
		err := retryStartup(ctx, "database", startupAttempts, waitContext, func(ctx context.Context) error {
			var err error
			db, err = database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
			return err
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		slog.Info("database connection established")

		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			b.Close()
			return nil, err
		}

		accounts := repository.NewPostgresAccountRepo(db)
		b.accounts = accounts
		b.apiKeys = repository.NewPostgresAPIKeyRepo(db)
		b.health["records"] = accounts
	} else {
		accounts := repository.NewFSAccountRepo(cfg.StorageRoot)
		b.accounts = accounts
		b.apiKeys = repository.NewFSAPIKeyRepo(cfg.StorageRoot)
		b.health["records"] = accounts
	}

	// ファイルスロット
	if cfg.UsesMinio() {
		client, err := repository.NewMinioClient(repository.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Prefix:    cfg.MinioPrefix,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		slotRepo := repository.NewMinioSlotRepo(client, cfg.MinioBucket, cfg.MinioPrefix)
		if err := retryStartup(ctx, "minio", startupAttempts, waitContext, slotRepo.Ping); err != nil {
			b.Close()
			return nil, err
		}
		b.slot = slotRepo
		b.health["slot"] = slotRepo
	} else {
		slotRepo := repository.NewFSSlotRepo(cfg.StorageRoot)
		b.slot = slotRepo
		b.health["slot"] = slotRepo
	}

	return b, nil
}

// newRouter はバックエンドからストアとサービスを組み立て、ルーターを返す。
// 返されたRateLimiterはサーバー停止時にStopすること。
func newRouter(cfg *config.Config, b *backends) (http.Handler, *middleware.RateLimiter) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ストア
	creds := credential.NewStore(b.accounts)
	keys := apikey.NewStore(b.apiKeys)
	fileSlot := slot.New(b.slot)

	// 3. サービス
	svc := cabinet.NewService(creds, keys, fileSlot, security.NewNameSanitizer(), collector)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,

		Sessions:     creds,
		APIKeys:      keys,
		AuthFailures: collector,

		AuthService:   svc,
		APIKeyService: svc,
		FileService:   svc,
		SystemService: svc,
		FileConfig: handler.FileHandlerConfig{
			BaseURL:        cfg.BaseURL,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},

		HealthChecks:    b.health,
		Metrics:         collector,
		MetricsGatherer: reg,
	})

	return router, rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// バックエンドを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	b, err := openBackends(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open backends: %w", err)
	}
	defer b.Close()

	router, rateLimiter := newRouter(cfg, b)
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// STORAGE_BACKEND=postgres 以外では何もしない。
func runMigrate(cfg *config.Config) error {
	if !cfg.UsesPostgres() {
		slog.Info("storage backend does not use a database, nothing to migrate",
			slog.String("storage_backend", cfg.StorageBackend),
		)
		return nil
	}

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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
