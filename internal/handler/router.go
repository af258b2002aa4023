package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/toxguard/internal/metrics"
	"github.com/hitoshi/toxguard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	ModeratorFinder middleware.ModeratorFinder
	RateLimiter     *middleware.RateLimiter
	Logger          *slog.Logger
	Metrics         metrics.Recorder

	// 認証不要のエンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// モデレーション
	ModerationService ModerationServiceInterface
	ReportService     ReportServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → Identity → RateLimit(General) → [RateLimit(Remote)]
//
// /health と /metrics は識別ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	modHandler := NewModerationHandler(deps.ModerationService)
	reportHandler := NewReportHandler(deps.ReportService)

	// --- 識別不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- モデレーター識別が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.ModeratorFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// Facebookまたは推論サービスを呼び出すルートには外部呼び出し用のレート制限を追加する
		remote := r.With(deps.RateLimiter.RemoteMiddleware())

		// 投稿・コメントの取り込み
		r.Get("/api/posts", modHandler.ListPosts)
		remote.Post("/api/posts/fetch", modHandler.FetchPosts)
		remote.Post("/api/posts/{postID}/comments/fetch", modHandler.FetchComments)

		// コメント
		r.Route("/api/comments", func(r chi.Router) {
			r.Get("/", modHandler.ListComments)
			r.With(deps.RateLimiter.RemoteMiddleware()).Post("/analyze", modHandler.AnalyzeBulk)

			r.Route("/{id}", func(r chi.Router) {
				r.With(deps.RateLimiter.RemoteMiddleware()).Post("/analyze", modHandler.AnalyzeOne)
				r.With(deps.RateLimiter.RemoteMiddleware()).Post("/delete", modHandler.Delete)
				r.With(deps.RateLimiter.RemoteMiddleware()).Post("/hide", modHandler.Hide)
				r.With(deps.RateLimiter.RemoteMiddleware()).Post("/unhide", modHandler.Unhide)
				r.Put("/labels", modHandler.Relabel)
			})
		})

		// 削除記録
		r.Get("/api/tombstones", reportHandler.ListTombstones)
		r.Get("/api/tombstones.csv", reportHandler.ExportTombstonesCSV)

		// 統計・集計
		r.Get("/api/stats", reportHandler.Stats)
		r.Get("/api/summary", reportHandler.Summary)

		remote.Post("/api/model/probe", modHandler.ProbeModel)
	})

	return r
}
