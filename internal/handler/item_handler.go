package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// 一覧取得のデフォルト件数と上限
const (
	defaultItemLimit = 20
	maxItemLimit     = 100
)

// ItemListerInterface は記事ハンドラーが必要とするリポジトリインターフェース。
type ItemListerInterface interface {
	// ListLatest は直近に取得した記事をfetched_at降順で返す。
	ListLatest(ctx context.Context, limit int) ([]*model.Item, error)
}

// ItemHandler は記事参照のHTTPハンドラー。
type ItemHandler struct {
	items ItemListerInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(items ItemListerInterface) *ItemHandler {
	return &ItemHandler{
		items: items,
	}
}

// itemResponse は記事のAPIレスポンス。
type itemResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ListLatest は直近サイクルの記事一覧を取得する。
// GET /api/items/latest?limit=
func (h *ItemHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	limit := defaultItemLimit
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
		if parsed > maxItemLimit {
			parsed = maxItemLimit
		}
		limit = parsed
	}

	items, err := h.items.ListLatest(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]itemResponse, len(items))
	for i, item := range items {
		results[i] = itemResponse{
			ID:          item.ID,
			Title:       item.Title,
			URL:         item.URL,
			Description: item.Description,
			Summary:     item.Summary,
			Source:      item.Source,
			FetchedAt:   item.FetchedAt,
		}
	}

	writeJSON(w, http.StatusOK, results)
}
