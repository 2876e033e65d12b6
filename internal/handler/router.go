package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdrop/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	SubscriberService SubscriberServiceInterface
	ChannelService    ChannelServiceInterface
	ItemLister        ItemListerInterface
	DeliveryLister    DeliveryListerInterface
	DispatchRunner    DispatchRunnerInterface
	SubscriberCounter SubscriberCounterInterface
	DeliveryCounter   DeliveryCounterInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → RateLimit(General)
//
// ヘルスチェック（/health）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	subHandler := NewSubscriberHandler(deps.SubscriberService)
	chHandler := NewChannelHandler(deps.ChannelService)
	itemHandler := NewItemHandler(deps.ItemLister)
	deliveryHandler := NewDeliveryHandler(deps.DeliveryLister)
	dispatchHandler := NewDispatchHandler(deps.DispatchRunner)
	statsHandler := NewStatsHandler(deps.SubscriberCounter, deps.DeliveryCounter)
	healthHandler := NewHealthHandler()

	// ヘルスチェック
	r.Get("/health", healthHandler.Check)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 購読者管理
		r.Route("/api/subscribers", func(r chi.Router) {
			r.Post("/", subHandler.Subscribe)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subHandler.Get)
				r.Patch("/", subHandler.Update)
				r.Delete("/", subHandler.Deactivate)

				// GET /api/subscribers/{id}/channels - 購読者のチャネル一覧
				r.Get("/channels", chHandler.List)
			})
		})

		// チャネル管理
		r.Route("/api/channels", func(r chi.Router) {
			r.Post("/", chHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", chHandler.Update)
				r.Delete("/", chHandler.Delete)
				r.Post("/test", chHandler.TestSend)
			})
		})

		// 記事参照
		r.Get("/api/items/latest", itemHandler.ListLatest)

		// 配信台帳
		r.Get("/api/deliveries", deliveryHandler.List)

		// 手動配信トリガ（専用レート制限を追加）
		r.With(deps.RateLimiter.DispatchTriggerMiddleware()).Post("/api/dispatch/run", dispatchHandler.Run)

		// 運用統計
		r.Get("/api/stats", statsHandler.Get)
	})

	return r
}
