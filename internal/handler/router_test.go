package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdrop/internal/dispatch"
	"github.com/hitoshi/newsdrop/internal/middleware"
	"github.com/hitoshi/newsdrop/internal/model"
)

// mockItemLister はテスト用の記事リスタ。
type mockItemLister struct {
	listLatestFunc func(ctx context.Context, limit int) ([]*model.Item, error)
}

func (m *mockItemLister) ListLatest(ctx context.Context, limit int) ([]*model.Item, error) {
	if m.listLatestFunc != nil {
		return m.listLatestFunc(ctx, limit)
	}
	return nil, nil
}

// mockDeliveryLister はテスト用の配信台帳リスタ。
type mockDeliveryLister struct {
	listFunc func(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error)
}

func (m *mockDeliveryLister) ListBySubscriberID(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, subscriberID, limit)
	}
	return nil, nil
}

// mockDispatchRunner はテスト用の配信トリガ。
type mockDispatchRunner struct {
	runOnceFunc func(ctx context.Context, tick time.Time) error
}

func (m *mockDispatchRunner) RunOnce(ctx context.Context, tick time.Time) error {
	if m.runOnceFunc != nil {
		return m.runOnceFunc(ctx, tick)
	}
	return nil
}

// mockSubscriberCounter はテスト用の購読者集計。
type mockSubscriberCounter struct {
	active, inactive int
}

func (m *mockSubscriberCounter) CountByActive(ctx context.Context) (int, int, error) {
	return m.active, m.inactive, nil
}

// mockDeliveryCounter はテスト用の配信集計。
type mockDeliveryCounter struct {
	sent, failed int
}

func (m *mockDeliveryCounter) CountByStatusSince(ctx context.Context, since time.Time) (int, int, error) {
	return m.sent, m.failed, nil
}

// fullRouterDeps はテスト用のRouterDepsを構成する。
func fullRouterDeps() (*RouterDeps, *middleware.RateLimiter) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		DispatchRate:    rate.Limit(1000),
		DispatchBurst:   1000,
		CleanupInterval: time.Minute,
	})

	return &RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		SubscriberService: &mockSubscriberService{},
		ChannelService:    &mockChannelService{},
		ItemLister:        &mockItemLister{},
		DeliveryLister:    &mockDeliveryLister{},
		DispatchRunner:    &mockDispatchRunner{},
		SubscriberCounter: &mockSubscriberCounter{active: 3, inactive: 1},
		DeliveryCounter:   &mockDeliveryCounter{sent: 10, failed: 2},
	}, rl
}

// TestRouter_Health はヘルスチェックエンドポイントを検証する。
func TestRouter_Health(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %s", resp["status"])
	}
}

// TestRouter_ItemsLatest は記事一覧エンドポイントを検証する。
func TestRouter_ItemsLatest(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()

	var gotLimit int
	deps.ItemLister = &mockItemLister{
		listLatestFunc: func(ctx context.Context, limit int) ([]*model.Item, error) {
			gotLimit = limit
			return []*model.Item{
				{ID: "item-1", Title: "Article", URL: "https://example.com/a"},
			}, nil
		},
	}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/items/latest?limit=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 3 {
		t.Errorf("limit = %d, want 3", gotLimit)
	}

	var resp []itemResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].Title != "Article" {
		t.Errorf("resp = %+v", resp)
	}
}

// TestRouter_ItemsLatest_InvalidLimit は不正なlimitが400になることを検証する。
func TestRouter_ItemsLatest_InvalidLimit(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/items/latest?limit=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestRouter_Deliveries は配信台帳エンドポイントを検証する。
func TestRouter_Deliveries(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()

	deps.DeliveryLister = &mockDeliveryLister{
		listFunc: func(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error) {
			return []*model.Delivery{
				{
					ID:           "del-1",
					SubscriberID: subscriberID,
					CycleAt:      time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC),
					ItemCount:    3,
					Status:       model.DeliveryStatusSent,
					ChannelResults: []model.ChannelResult{
						{Kind: "email", Outcome: model.ChannelOutcomeSent},
					},
				},
			}, nil
		},
	}
	router := NewRouter(deps)

	t.Run("subscriber_id指定で取得", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/deliveries?subscriber_id=sub-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp []deliveryResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(resp) != 1 || resp[0].Status != "sent" || len(resp[0].ChannelResults) != 1 {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("subscriber_id未指定は400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/deliveries", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

// TestRouter_DispatchRun は手動配信トリガを検証する。
func TestRouter_DispatchRun(t *testing.T) {
	t.Run("正常実行", func(t *testing.T) {
		deps, rl := fullRouterDeps()
		defer rl.Stop()

		var gotTick time.Time
		deps.DispatchRunner = &mockDispatchRunner{
			runOnceFunc: func(ctx context.Context, tick time.Time) error {
				gotTick = tick
				return nil
			},
		}
		router := NewRouter(deps)

		req := httptest.NewRequest(http.MethodPost, "/api/dispatch/run", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotTick.Second() != 0 || gotTick.Nanosecond() != 0 {
			t.Errorf("ティックは分単位に切り詰められるべき: %v", gotTick)
		}
	})

	t.Run("実行中は409", func(t *testing.T) {
		deps, rl := fullRouterDeps()
		defer rl.Stop()

		deps.DispatchRunner = &mockDispatchRunner{
			runOnceFunc: func(ctx context.Context, tick time.Time) error {
				return dispatch.ErrPassInProgress
			},
		}
		router := NewRouter(deps)

		req := httptest.NewRequest(http.MethodPost, "/api/dispatch/run", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}

		var resp apiErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if resp.Code != model.ErrCodeDispatchInProgress {
			t.Errorf("Code = %s", resp.Code)
		}
	})
}

// TestRouter_Stats は運用統計エンドポイントを検証する。
func TestRouter_Stats(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.ActiveSubscribers != 3 || resp.InactiveSubscribers != 1 {
		t.Errorf("購読者数 = %d/%d", resp.ActiveSubscribers, resp.InactiveSubscribers)
	}
	if resp.DeliveriesSent != 10 || resp.DeliveriesFailed != 2 {
		t.Errorf("配信数 = %d/%d", resp.DeliveriesSent, resp.DeliveriesFailed)
	}
}

// TestRouter_CORSHeaders はCORSミドルウェアの適用を検証する。
func TestRouter_CORSHeaders(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// TestRouter_NotFound は未定義ルートが404になることを検証する。
func TestRouter_NotFound(t *testing.T) {
	deps, rl := fullRouterDeps()
	defer rl.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
