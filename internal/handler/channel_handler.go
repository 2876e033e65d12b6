package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdrop/internal/channel"
	"github.com/hitoshi/newsdrop/internal/model"
)

// ChannelServiceInterface はチャネルハンドラーが必要とするサービスインターフェース。
type ChannelServiceInterface interface {
	// Create は購読者に新しい通知チャネルを登録する。
	Create(ctx context.Context, input channel.CreateInput) (*model.Channel, error)
	// List は購読者の全チャネル一覧を返す。
	List(ctx context.Context, subscriberID string) ([]*model.Channel, error)
	// Update はチャネルのラベル、エンドポイント、有効状態を更新する。
	Update(ctx context.Context, id string, input channel.UpdateInput) (*model.Channel, error)
	// Delete は指定IDのチャネルを削除する。
	Delete(ctx context.Context, id string) error
	// TestSend はチャネルへサンプルペイロードを送信する。
	TestSend(ctx context.Context, id string) error
}

// ChannelHandler は通知チャネル管理のHTTPハンドラー。
type ChannelHandler struct {
	service ChannelServiceInterface
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(service ChannelServiceInterface) *ChannelHandler {
	return &ChannelHandler{
		service: service,
	}
}

// channelResponse はチャネルのAPIレスポンス。
type channelResponse struct {
	ID           string     `json:"id"`
	SubscriberID string     `json:"subscriber_id"`
	Kind         string     `json:"kind"`
	Label        string     `json:"label,omitempty"`
	Endpoint     string     `json:"endpoint"`
	IsActive     bool       `json:"is_active"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// createChannelRequest はチャネル登録リクエストのボディ。
type createChannelRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Kind         string `json:"kind"`
	Label        string `json:"label"`
	Endpoint     string `json:"endpoint"`
}

// updateChannelRequest はチャネル更新リクエストのボディ。
type updateChannelRequest struct {
	Label    *string `json:"label"`
	Endpoint *string `json:"endpoint"`
	IsActive *bool   `json:"is_active"`
}

// Create は通知チャネルを登録する。
// POST /api/channels
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	ch, err := h.service.Create(r.Context(), channel.CreateInput{
		SubscriberID: req.SubscriberID,
		Kind:         req.Kind,
		Label:        req.Label,
		Endpoint:     req.Endpoint,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChannelResponse(ch))
}

// List は購読者のチャネル一覧を取得する。
// GET /api/subscribers/{id}/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriberID := chi.URLParam(r, "id")

	channels, err := h.service.List(r.Context(), subscriberID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]channelResponse, len(channels))
	for i, ch := range channels {
		results[i] = toChannelResponse(ch)
	}

	writeJSON(w, http.StatusOK, results)
}

// Update はチャネルを更新する。
// PATCH /api/channels/{id}
func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	ch, err := h.service.Update(r.Context(), id, channel.UpdateInput{
		Label:    req.Label,
		Endpoint: req.Endpoint,
		IsActive: req.IsActive,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

// Delete はチャネルを削除する。
// DELETE /api/channels/{id}
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestSend はチャネルへサンプルペイロードを送信して導通を確認する。
// POST /api/channels/{id}/test
func (h *ChannelHandler) TestSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.TestSend(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// toChannelResponse はmodel.ChannelからAPIレスポンスに変換する。
func toChannelResponse(ch *model.Channel) channelResponse {
	return channelResponse{
		ID:           ch.ID,
		SubscriberID: ch.SubscriberID,
		Kind:         string(ch.Kind),
		Label:        ch.Label,
		Endpoint:     ch.Endpoint,
		IsActive:     ch.IsActive,
		LastSentAt:   ch.LastSentAt,
		CreatedAt:    ch.CreatedAt,
	}
}
