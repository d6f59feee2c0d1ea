package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/stockroom/internal/middleware"
	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/upload"
)

// IdentityResolver は認証チェックと同期の両方でユーザーを解決する。
type IdentityResolver interface {
	middleware.UserResolver
	IdentitySyncer
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Errors            *middleware.ErrorNormalizer
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter
	Metrics           middleware.HTTPRecorder
	OnFatal           func(rec any)

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 識別情報
	ClaimsExtractor middleware.ClaimsExtractor
	Resolver        IdentityResolver

	// ユーザー
	UserService UserServiceInterface

	// 商品
	ProductService ProductServiceInterface
	Images         ImageStore
	ImageDir       string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS → RateLimit(/api) → Identity → RequireRole(admin)
//
// /api/health と /api/users/sync はID解決の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	errs := deps.Errors
	if errs == nil {
		errs = middleware.NewErrorNormalizer(middleware.ModeSafe, deps.Logger)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware(errs, deps.OnFatal))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errs.Write(w, r, model.NewNotFoundError(fmt.Sprintf("Can't find %s on this server!", r.URL.Path)))
	})

	healthHandler := NewHealthHandler(deps.HealthChecker)
	userHandler := NewUserHandler(deps.Resolver, deps.UserService, errs)
	productHandler := NewProductHandler(deps.ProductService, deps.Images, errs)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.ImageDir != "" {
		r.Handle(upload.PublicPrefix+"*", staticImages(deps.ImageDir))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}

			// IdPとの同期（ボディの主張で解決する）
			r.Post("/users/sync", userHandler.Sync)

			// --- ID解決が必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewIdentityMiddleware(deps.ClaimsExtractor, deps.Resolver, errs))

				r.Get("/users/me", userHandler.Me)
				r.Get("/users/{id}", userHandler.GetUser)

				r.Get("/products", productHandler.ListProducts)
				r.Get("/products/totals", productHandler.Totals)
				r.Get("/products/{id}", productHandler.GetProduct)

				// --- 管理者のみ ---
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(model.RoleAdmin, errs))

					r.Get("/users", userHandler.ListUsers)
					r.Patch("/users/{id}/role", userHandler.UpdateRole)
					r.Delete("/users/{id}", userHandler.DeleteUser)

					r.Post("/products", productHandler.CreateProduct)
					r.Put("/products/{id}", productHandler.UpdateProduct)
					r.Delete("/products/{id}", productHandler.DeleteProduct)
				})
			})
		})
	})

	return r
}

// imageContentSecurityPolicy は配信画像を直接開いてもスクリプトを実行させないためのCSP。
const imageContentSecurityPolicy = "default-src 'none'; img-src 'self'; sandbox"

// staticImages は保存済みの商品画像を配信する。ディレクトリ一覧は返さない。
func staticImages(dir string) http.Handler {
	fs := http.StripPrefix(upload.PublicPrefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Security-Policy", imageContentSecurityPolicy)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}
