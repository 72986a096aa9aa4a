package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taqafit/accounts/internal/metrics"
	"github.com/taqafit/accounts/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	AccountFinder     middleware.AccountFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	RegistrationService RegistrationServiceInterface
	VerificationService VerificationServiceInterface
	AuthService         AuthServiceInterface
	AuthConfig          AuthHandlerConfig

	// 運用
	DB       Pinger
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// 認証ルート（/auth/*）はIPキーのレート制限のみを通し、
// 保護ルート（/api/*）は Session → RateLimit(General) → VerifiedGate を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	authHandler := NewAuthHandler(
		deps.RegistrationService,
		deps.VerificationService,
		deps.AuthService,
		deps.AuthConfig,
		deps.Metrics,
	)
	accountHandler := NewAccountHandler(deps.AccountFinder)

	// --- 運用エンドポイント ---

	if deps.DB != nil {
		healthHandler := NewHealthHandler(deps.DB)
		r.Get("/healthz", healthHandler.Healthz)
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証ルート（セッション不要） ---
	// IPキーのレート制限で列挙・総当たりを抑止する。
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.AuthMiddleware())
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/verify-email", authHandler.VerifyEmail)
			r.Post("/resend-verification", authHandler.ResendVerification)
			r.Post("/login", authHandler.Login)
			r.Post("/google", authHandler.GoogleLogin)
			r.Post("/logout", authHandler.Logout)
		})
	})

	// --- 保護ルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → VerifiedGate
	// 検証状態はリクエストごとに読み直され、セッション確立時の状態を引き継がない。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewVerifiedGateMiddleware(deps.AccountFinder))

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", accountHandler.Me)
		})
	})

	return r
}
