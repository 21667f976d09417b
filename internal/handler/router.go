package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cabinet/internal/metrics"
	"github.com/hitoshi/cabinet/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter

	// 認証ガード
	Sessions     middleware.TokenValidator
	APIKeys      middleware.KeyValidator
	AuthFailures middleware.AuthFailureRecorder

	// サービス
	AuthService   AuthServiceInterface
	APIKeyService APIKeyServiceInterface
	FileService   FileServiceInterface
	SystemService SystemServiceInterface
	FileConfig    FileHandlerConfig

	// 運用
	HealthChecks    map[string]HealthChecker
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// /health と /metrics はレート制限の外に置く。それ以外はGeneralのレート制限を受け、
// /register と /login にはさらにAuthのレート制限がかかる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.AuthFailures
	if recorder == nil {
		recorder = middleware.NopAuthFailureRecorder{}
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewHTTPMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService)
	apiKeyHandler := NewAPIKeyHandler(deps.APIKeyService)
	fileHandler := NewFileHandler(deps.FileService, deps.FileConfig)
	systemHandler := NewSystemHandler(deps.SystemService)
	healthHandler := NewHealthHandler(deps.HealthChecks)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthMiddleware())
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.Get("/check-user", authHandler.CheckUser)
		r.Get("/files/{filename}", fileHandler.Preview)

		// --- セッション認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionGuard(deps.Sessions, recorder))

			r.Post("/generate-api-key", apiKeyHandler.Generate)
			r.Post("/upload", fileHandler.Upload)
			r.Get("/file-info", fileHandler.FileInfo)
			r.Delete("/file", fileHandler.Delete)
			r.Post("/reset-system", systemHandler.Reset)
		})

		// --- APIキー認証が必要な機械間連携ルート ---
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewAPIKeyGuard(deps.APIKeys, recorder))

			r.Post("/upload", fileHandler.Upload)
			r.Get("/file-info", fileHandler.FileInfo)
		})
	})

	return r
}
