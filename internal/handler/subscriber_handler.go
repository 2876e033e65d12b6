// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/subscriber"
)

// SubscriberServiceInterface は購読者ハンドラーが必要とするサービスインターフェース。
type SubscriberServiceInterface interface {
	// Subscribe は新しい購読者を登録する。
	Subscribe(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error)
	// Get は指定IDの購読者を返す。
	Get(ctx context.Context, id string) (*model.Subscriber, error)
	// UpdatePreferences は購読者の配信設定を更新する。
	UpdatePreferences(ctx context.Context, id string, input subscriber.UpdateInput) (*model.Subscriber, error)
	// Deactivate は購読を停止する。
	Deactivate(ctx context.Context, id string) error
}

// SubscriberHandler は購読者管理のHTTPハンドラー。
type SubscriberHandler struct {
	service SubscriberServiceInterface
}

// NewSubscriberHandler はSubscriberHandlerを生成する。
func NewSubscriberHandler(service SubscriberServiceInterface) *SubscriberHandler {
	return &SubscriberHandler{
		service: service,
	}
}

// subscriberResponse は購読者のAPIレスポンス。
type subscriberResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	IsActive        bool       `json:"is_active"`
	PreferredTime   string     `json:"preferred_time"`
	Timezone        string     `json:"timezone"`
	Cadence         string     `json:"cadence"`
	MaxItems        int        `json:"max_items"`
	LastDeliveredAt *time.Time `json:"last_delivered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// subscribeRequest は購読登録リクエストのボディ。
type subscribeRequest struct {
	Email         string `json:"email"`
	PreferredTime string `json:"preferred_time"`
	Timezone      string `json:"timezone"`
	Cadence       string `json:"cadence"`
	MaxItems      *int   `json:"max_items"`
}

// updateSubscriberRequest は配信設定更新リクエストのボディ。
type updateSubscriberRequest struct {
	PreferredTime *string `json:"preferred_time"`
	Timezone      *string `json:"timezone"`
	Cadence       *string `json:"cadence"`
	MaxItems      *int    `json:"max_items"`
	IsActive      *bool   `json:"is_active"`
}

// Subscribe は新しい購読者を登録する。
// POST /api/subscribers
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	sub, err := h.service.Subscribe(r.Context(), subscriber.SubscribeInput{
		Email:         req.Email,
		PreferredTime: req.PreferredTime,
		Timezone:      req.Timezone,
		Cadence:       req.Cadence,
		MaxItems:      req.MaxItems,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriberResponse(sub))
}

// Get は購読者を取得する。
// GET /api/subscribers/{id}
func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriberResponse(sub))
}

// Update は購読者の配信設定を更新する。
// PATCH /api/subscribers/{id}
func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	sub, err := h.service.UpdatePreferences(r.Context(), id, subscriber.UpdateInput{
		PreferredTime: req.PreferredTime,
		Timezone:      req.Timezone,
		Cadence:       req.Cadence,
		MaxItems:      req.MaxItems,
		IsActive:      req.IsActive,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriberResponse(sub))
}

// Deactivate は購読を停止する。行削除ではなくフラグ操作。
// DELETE /api/subscribers/{id}
func (h *SubscriberHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toSubscriberResponse はmodel.SubscriberからAPIレスポンスに変換する。
func toSubscriberResponse(sub *model.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:              sub.ID,
		Email:           sub.Email,
		IsActive:        sub.IsActive,
		PreferredTime:   formatPreferredTime(sub.PreferredHour, sub.PreferredMinute),
		Timezone:        sub.Timezone,
		Cadence:         string(sub.Cadence),
		MaxItems:        sub.MaxItems,
		LastDeliveredAt: sub.LastDeliveredAt,
		CreatedAt:       sub.CreatedAt,
	}
}

// formatPreferredTime は時と分を"HH:MM"形式に整形する。
func formatPreferredTime(hour, minute int) string {
	return time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")
}

// apiErrorResponse は統一エラーフォーマットのレスポンスボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestBody はJSONボディ解析失敗の400レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSubscriberNotFound, model.ErrCodeChannelNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateSubscriber:
		return http.StatusConflict
	case model.ErrCodeInvalidEmail,
		model.ErrCodeInvalidTimezone,
		model.ErrCodeInvalidCadence,
		model.ErrCodeInvalidTime,
		model.ErrCodeInvalidMaxItems,
		model.ErrCodeInvalidChannelKind,
		model.ErrCodeMissingEndpoint:
		return http.StatusBadRequest
	case model.ErrCodeEndpointBlocked:
		return http.StatusForbidden
	case model.ErrCodeDispatchInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
