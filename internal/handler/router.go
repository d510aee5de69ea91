package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/nbhdcity/internal/metrics"
	"github.com/hitoshi/nbhdcity/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// サービス
	AuthService         AuthServiceInterface
	AuthConfig          AuthHandlerConfig
	NeighborhoodService NeighborhoodServiceInterface
	UserService         UserServiceInterface

	// 開発モード（テストセッション発行エンドポイントの公開）
	DevMode bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → [Auth → RateLimit(General)]
//
// 近隣の一覧・詳細と認証フローは認証不要。書き込み系と自分に関する読み取りは
// Bearerトークン必須で、認証後にユーザー単位のレート制限がかかる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	authMiddleware := middleware.NewAuthMiddleware(deps.TokenVerifier, deps.Collector)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Collector)
	nbhdHandler := NewNeighborhoodHandler(deps.NeighborhoodService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		if deps.DevMode {
			r.Post("/test-session", authHandler.TestSession)
		}

		// GET /auth/me - トークンの検証と自分のプロフィール取得
		r.With(authMiddleware).Get("/me", userHandler.Me)
	})

	// 近隣の一覧・詳細とユーザープロフィールの参照は公開
	r.Get("/api/neighborhoods", nbhdHandler.List)
	r.Get("/api/neighborhoods/{id}", nbhdHandler.Get)
	r.Get("/api/users/{id}", userHandler.GetUser)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 近隣管理
		r.Route("/api/neighborhoods", func(r chi.Router) {
			// POST /api/neighborhoods - 近隣作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.CreateMiddleware()).Post("/", nbhdHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", nbhdHandler.Update)
				r.Post("/join", nbhdHandler.Join)
				r.Delete("/leave", nbhdHandler.Leave)
			})
		})

		// ユーザー管理。/api/users/{id}は公開側に登録済みのため、
		// サブルーターをマウントせず静的パスで個別に登録する。
		r.Get("/api/users", userHandler.List)
		r.Post("/api/users/batch", userHandler.Batch)
		r.Get("/api/users/me", userHandler.Me)
		r.Get("/api/users/me/neighborhoods", nbhdHandler.ListMine)
		r.Get("/api/users/me/profile", userHandler.Me)
		r.Post("/api/users/me/profile", userHandler.CreateProfile)
		r.Put("/api/users/me/profile", userHandler.UpdateProfile)
	})

	return r
}
