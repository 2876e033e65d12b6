package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// 配信履歴のデフォルト件数と上限
const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 200
)

// DeliveryListerInterface は配信台帳ハンドラーが必要とするリポジトリインターフェース。
type DeliveryListerInterface interface {
	// ListBySubscriberID は購読者の配信履歴をcycle_at降順で返す。
	ListBySubscriberID(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error)
}

// DeliveryHandler は配信台帳参照のHTTPハンドラー。
type DeliveryHandler struct {
	deliveries DeliveryListerInterface
}

// NewDeliveryHandler はDeliveryHandlerを生成する。
func NewDeliveryHandler(deliveries DeliveryListerInterface) *DeliveryHandler {
	return &DeliveryHandler{
		deliveries: deliveries,
	}
}

// deliveryResponse は配信台帳エントリのAPIレスポンス。
type deliveryResponse struct {
	ID             string                `json:"id"`
	SubscriberID   string                `json:"subscriber_id"`
	CycleAt        time.Time             `json:"cycle_at"`
	ItemCount      int                   `json:"item_count"`
	Status         string                `json:"status"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	ChannelResults []model.ChannelResult `json:"channel_results"`
	CreatedAt      time.Time             `json:"created_at"`
}

// List は購読者の配信履歴を取得する。
// GET /api/deliveries?subscriber_id=&limit=
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_SUBSCRIBER_ID",
			Message:  "subscriber_idが指定されていません。",
			Category: "validation",
			Action:   "クエリパラメータsubscriber_idを指定してください。",
		})
		return
	}

	limit := defaultDeliveryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_LIMIT",
				Message:  "limitの値が不正です。",
				Category: "validation",
				Action:   "limitには1以上の整数を指定してください。",
			})
			return
		}
		if parsed > maxDeliveryLimit {
			parsed = maxDeliveryLimit
		}
		limit = parsed
	}

	deliveries, err := h.deliveries.ListBySubscriberID(r.Context(), subscriberID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]deliveryResponse, len(deliveries))
	for i, d := range deliveries {
		results[i] = deliveryResponse{
			ID:             d.ID,
			SubscriberID:   d.SubscriberID,
			CycleAt:        d.CycleAt,
			ItemCount:      d.ItemCount,
			Status:         string(d.Status),
			ErrorMessage:   d.ErrorMessage,
			ChannelResults: d.ChannelResults,
			CreatedAt:      d.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, results)
}
