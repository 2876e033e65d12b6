package handler

import (
	"context"
	"net/http"
	"time"
)

// 配信集計の対象期間
const statsWindow = 7 * 24 * time.Hour

// SubscriberCounterInterface は購読者数の集計インターフェース。
type SubscriberCounterInterface interface {
	// CountByActive はアクティブ/非アクティブ別の購読者数を返す。
	CountByActive(ctx context.Context) (active int, inactive int, err error)
}

// DeliveryCounterInterface は配信結果の集計インターフェース。
type DeliveryCounterInterface interface {
	// CountByStatusSince は指定日時以降の配信結果をステータス別に集計する。
	CountByStatusSince(ctx context.Context, since time.Time) (sent int, failed int, err error)
}

// StatsHandler は運用統計のHTTPハンドラー。
type StatsHandler struct {
	subscribers SubscriberCounterInterface
	deliveries  DeliveryCounterInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(subscribers SubscriberCounterInterface, deliveries DeliveryCounterInterface) *StatsHandler {
	return &StatsHandler{
		subscribers: subscribers,
		deliveries:  deliveries,
	}
}

// statsResponse は運用統計のAPIレスポンス。
type statsResponse struct {
	ActiveSubscribers   int       `json:"active_subscribers"`
	InactiveSubscribers int       `json:"inactive_subscribers"`
	DeliveriesSent      int       `json:"deliveries_sent"`
	DeliveriesFailed    int       `json:"deliveries_failed"`
	Since               time.Time `json:"since"`
}

// Get は購読者数と直近7日間の配信集計を取得する。
// GET /api/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	active, inactive, err := h.subscribers.CountByActive(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	since := time.Now().UTC().Add(-statsWindow)
	sent, failed, err := h.deliveries.CountByStatusSince(r.Context(), since)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ActiveSubscribers:   active,
		InactiveSubscribers: inactive,
		DeliveriesSent:      sent,
		DeliveriesFailed:    failed,
		Since:               since,
	})
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct{}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check はサービスの稼働状態を返す。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
