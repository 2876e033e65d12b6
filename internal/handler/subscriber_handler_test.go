package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/subscriber"
)

// mockSubscriberService はテスト用の購読者サービス。
type mockSubscriberService struct {
	subscribeFunc  func(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error)
	getFunc        func(ctx context.Context, id string) (*model.Subscriber, error)
	updateFunc     func(ctx context.Context, id string, input subscriber.UpdateInput) (*model.Subscriber, error)
	deactivateFunc func(ctx context.Context, id string) error
}

func (m *mockSubscriberService) Subscribe(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error) {
	return m.subscribeFunc(ctx, input)
}

func (m *mockSubscriberService) Get(ctx context.Context, id string) (*model.Subscriber, error) {
	return m.getFunc(ctx, id)
}

func (m *mockSubscriberService) UpdatePreferences(ctx context.Context, id string, input subscriber.UpdateInput) (*model.Subscriber, error) {
	return m.updateFunc(ctx, id, input)
}

func (m *mockSubscriberService) Deactivate(ctx context.Context, id string) error {
	return m.deactivateFunc(ctx, id)
}

func sampleSubscriber() *model.Subscriber {
	return &model.Subscriber{
		ID:              "sub-1",
		Email:           "user@example.com",
		IsActive:        true,
		PreferredHour:   10,
		PreferredMinute: 0,
		Timezone:        "Asia/Kolkata",
		Cadence:         model.CadenceDaily,
		MaxItems:        5,
		CreatedAt:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newSubscriberRouter は購読者ルートのみを構成したテスト用ルーターを返す。
func newSubscriberRouter(service SubscriberServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewSubscriberHandler(service)
	r.Post("/api/subscribers", h.Subscribe)
	r.Get("/api/subscribers/{id}", h.Get)
	r.Patch("/api/subscribers/{id}", h.Update)
	r.Delete("/api/subscribers/{id}", h.Deactivate)
	return r
}

// TestSubscribeHandler_Created は購読登録の正常系を検証する。
func TestSubscribeHandler_Created(t *testing.T) {
	service := &mockSubscriberService{
		subscribeFunc: func(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error) {
			if input.Email != "user@example.com" {
				t.Errorf("Email = %s", input.Email)
			}
			return sampleSubscriber(), nil
		},
	}
	router := newSubscriberRouter(service)

	body := `{"email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/subscribers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp subscriberResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.ID != "sub-1" {
		t.Errorf("ID = %s", resp.ID)
	}
	if resp.PreferredTime != "10:00" {
		t.Errorf("PreferredTime = %s, want 10:00", resp.PreferredTime)
	}
	if resp.Cadence != "daily" {
		t.Errorf("Cadence = %s", resp.Cadence)
	}
}

// TestSubscribeHandler_InvalidJSON は不正なボディが400になることを検証する。
func TestSubscribeHandler_InvalidJSON(t *testing.T) {
	service := &mockSubscriberService{}
	router := newSubscriberRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/subscribers", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestSubscribeHandler_Duplicate は重複登録が409になることを検証する。
func TestSubscribeHandler_Duplicate(t *testing.T) {
	service := &mockSubscriberService{
		subscribeFunc: func(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error) {
			return nil, model.NewDuplicateSubscriberError(input.Email)
		},
	}
	router := newSubscriberRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/subscribers", strings.NewReader(`{"email":"user@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Code != model.ErrCodeDuplicateSubscriber {
		t.Errorf("Code = %s", resp.Code)
	}
}

// TestSubscribeHandler_ValidationError は検証エラーが400になることを検証する。
func TestSubscribeHandler_ValidationError(t *testing.T) {
	service := &mockSubscriberService{
		subscribeFunc: func(ctx context.Context, input subscriber.SubscribeInput) (*model.Subscriber, error) {
			return nil, model.NewInvalidTimezoneError(input.Timezone)
		},
	}
	router := newSubscriberRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/subscribers", strings.NewReader(`{"email":"a@example.com","timezone":"Bad/Zone"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestGetSubscriberHandler はID指定の取得と未検出404を検証する。
func TestGetSubscriberHandler(t *testing.T) {
	service := &mockSubscriberService{
		getFunc: func(ctx context.Context, id string) (*model.Subscriber, error) {
			if id == "sub-1" {
				return sampleSubscriber(), nil
			}
			return nil, model.NewSubscriberNotFoundError(id)
		},
	}
	router := newSubscriberRouter(service)

	t.Run("存在するID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/subscribers/sub-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("存在しないID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/subscribers/missing", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

// TestUpdateSubscriberHandler は設定更新の正常系を検証する。
func TestUpdateSubscriberHandler(t *testing.T) {
	var gotInput subscriber.UpdateInput
	service := &mockSubscriberService{
		updateFunc: func(ctx context.Context, id string, input subscriber.UpdateInput) (*model.Subscriber, error) {
			gotInput = input
			sub := sampleSubscriber()
			sub.PreferredHour = 18
			sub.PreferredMinute = 30
			return sub, nil
		},
	}
	router := newSubscriberRouter(service)

	body := `{"preferred_time":"18:30","cadence":"weekly"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/subscribers/sub-1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotInput.PreferredTime == nil || *gotInput.PreferredTime != "18:30" {
		t.Error("preferred_timeがサービスに渡るべき")
	}
	if gotInput.Cadence == nil || *gotInput.Cadence != "weekly" {
		t.Error("cadenceがサービスに渡るべき")
	}
	if gotInput.Timezone != nil {
		t.Error("未指定フィールドはnilであるべき")
	}
}

// TestDeactivateSubscriberHandler は購読停止が204を返すことを検証する。
func TestDeactivateSubscriberHandler(t *testing.T) {
	var gotID string
	service := &mockSubscriberService{
		deactivateFunc: func(ctx context.Context, id string) error {
			gotID = id
			return nil
		},
	}
	router := newSubscriberRouter(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/subscribers/sub-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if gotID != "sub-1" {
		t.Errorf("id = %s", gotID)
	}
}

// TestFormatPreferredTime は配信時刻の整形を検証する。
func TestFormatPreferredTime(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         string
	}{
		{10, 0, "10:00"},
		{0, 0, "00:00"},
		{23, 59, "23:59"},
		{9, 5, "09:05"},
	}

	for _, tt := range tests {
		if got := formatPreferredTime(tt.hour, tt.minute); got != tt.want {
			t.Errorf("formatPreferredTime(%d, %d) = %s, want %s", tt.hour, tt.minute, got, tt.want)
		}
	}
}
