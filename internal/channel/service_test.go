package channel

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockChannelRepo はテスト用のチャネルリポジトリ。
type mockChannelRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Channel, error)
	createFunc   func(ctx context.Context, ch *model.Channel) error

	created []*model.Channel
	updated []*model.Channel
	deleted []string
}

func (m *mockChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockChannelRepo) Create(ctx context.Context, ch *model.Channel) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, ch)
	}
	m.created = append(m.created, ch)
	return nil
}

func (m *mockChannelRepo) Update(ctx context.Context, ch *model.Channel) error {
	m.updated = append(m.updated, ch)
	return nil
}

func (m *mockChannelRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockChannelRepo) ListBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error) {
	return nil, nil
}

func (m *mockChannelRepo) ListActiveBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error) {
	return nil, nil
}

func (m *mockChannelRepo) UpdateLastSent(ctx context.Context, id string, sentAt time.Time) error {
	return nil
}

// mockSubscriberFinder は購読者取得のみを実装するテスト用リポジトリ。
type mockSubscriberFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Subscriber, error)
}

func (m *mockSubscriberFinder) FindByID(ctx context.Context, id string) (*model.Subscriber, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return testSubscriber(), nil
}

func (m *mockSubscriberFinder) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	return nil, nil
}

func (m *mockSubscriberFinder) Create(ctx context.Context, sub *model.Subscriber) error { return nil }

func (m *mockSubscriberFinder) Update(ctx context.Context, sub *model.Subscriber) error { return nil }

func (m *mockSubscriberFinder) ListActive(ctx context.Context) ([]*model.Subscriber, error) {
	return nil, nil
}

func (m *mockSubscriberFinder) UpdateWatermark(ctx context.Context, id string, deliveredAt time.Time) error {
	return nil
}

func (m *mockSubscriberFinder) CountByActive(ctx context.Context) (int, int, error) {
	return 0, 0, nil
}

// allowAllGuard は常に許可するテスト用バリデータ。
type allowAllGuard struct{}

func (allowAllGuard) ValidateEndpoint(rawURL string) error { return nil }

// denyAllGuard は常に拒否するテスト用バリデータ。
type denyAllGuard struct{}

func (denyAllGuard) ValidateEndpoint(rawURL string) error {
	return errors.New("ブロック対象のネットワークです")
}

func newChannelService(chRepo *mockChannelRepo, subRepo *mockSubscriberFinder, guard EndpointValidator, registry *Registry) *Service {
	var buf bytes.Buffer
	return NewService(chRepo, subRepo, guard, registry, newTestLogger(&buf), 10*time.Second)
}

// TestServiceCreate は正常系のチャネル登録を検証する。
func TestServiceCreate(t *testing.T) {
	chRepo := &mockChannelRepo{}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, NewRegistry())

	ch, err := s.Create(context.Background(), CreateInput{
		SubscriberID: "sub-1",
		Kind:         "slack",
		Label:        "  team alerts  ",
		Endpoint:     "https://hooks.slack.com/services/T/B/x",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if ch.Kind != model.ChannelKindSlack {
		t.Errorf("Kind = %s, want slack", ch.Kind)
	}
	if ch.Label != "team alerts" {
		t.Errorf("Label = %q, want 前後空白を除去", ch.Label)
	}
	if !ch.IsActive {
		t.Error("新規チャネルはアクティブであるべき")
	}
	if ch.ID == "" {
		t.Error("IDが生成されるべき")
	}
	if len(chRepo.created) != 1 {
		t.Errorf("作成件数 = %d, want 1", len(chRepo.created))
	}
}

// TestServiceCreate_Errors はチャネル登録の検証エラーを検証する。
func TestServiceCreate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    CreateInput
		guard    EndpointValidator
		noSub    bool
		wantCode string
	}{
		{
			name:     "購読者が存在しない",
			input:    CreateInput{SubscriberID: "missing", Kind: "slack", Endpoint: "https://hooks.slack.com/x"},
			guard:    allowAllGuard{},
			noSub:    true,
			wantCode: model.ErrCodeSubscriberNotFound,
		},
		{
			name:     "不正なチャネル種別",
			input:    CreateInput{SubscriberID: "sub-1", Kind: "discord", Endpoint: "https://example.com/x"},
			guard:    allowAllGuard{},
			wantCode: model.ErrCodeInvalidChannelKind,
		},
		{
			name:     "エンドポイント未指定",
			input:    CreateInput{SubscriberID: "sub-1", Kind: "webhook", Endpoint: "   "},
			guard:    allowAllGuard{},
			wantCode: model.ErrCodeMissingEndpoint,
		},
		{
			name:     "SSRFガードによるブロック",
			input:    CreateInput{SubscriberID: "sub-1", Kind: "webhook", Endpoint: "http://169.254.169.254/latest"},
			guard:    denyAllGuard{},
			wantCode: model.ErrCodeEndpointBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chRepo := &mockChannelRepo{}
			subRepo := &mockSubscriberFinder{}
			if tt.noSub {
				subRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Subscriber, error) {
					return nil, nil
				}
			}
			s := newChannelService(chRepo, subRepo, tt.guard, NewRegistry())

			_, err := s.Create(context.Background(), tt.input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("APIErrorが返るべき: %v", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.wantCode)
			}
			if len(chRepo.created) != 0 {
				t.Error("検証エラー時は作成すべきでない")
			}
		})
	}
}

// TestServiceUpdate はチャネル更新の部分適用を検証する。
func TestServiceUpdate(t *testing.T) {
	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{
				ID:       id,
				Kind:     model.ChannelKindWebhook,
				Label:    "old",
				Endpoint: "https://example.com/old",
				IsActive: true,
			}, nil
		},
	}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, NewRegistry())

	inactive := false
	ch, err := s.Update(context.Background(), "ch-1", UpdateInput{IsActive: &inactive})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	if ch.IsActive {
		t.Error("is_activeが下がるべき")
	}
	if ch.Label != "old" || ch.Endpoint != "https://example.com/old" {
		t.Error("未指定フィールドは維持されるべき")
	}
}

// TestServiceUpdate_BlockedEndpoint はエンドポイント変更時の再検証を検証する。
func TestServiceUpdate_BlockedEndpoint(t *testing.T) {
	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{ID: id, Kind: model.ChannelKindWebhook, Endpoint: "https://example.com/x"}, nil
		},
	}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, denyAllGuard{}, NewRegistry())

	blocked := "http://10.0.0.1/hook"
	_, err := s.Update(context.Background(), "ch-1", UpdateInput{Endpoint: &blocked})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeEndpointBlocked {
		t.Errorf("Code = %s", apiErr.Code)
	}
	if len(chRepo.updated) != 0 {
		t.Error("ブロック時は更新すべきでない")
	}
}

// TestServiceDelete はチャネル削除を検証する。
func TestServiceDelete(t *testing.T) {
	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{ID: id, Kind: model.ChannelKindSlack}, nil
		},
	}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, NewRegistry())

	if err := s.Delete(context.Background(), "ch-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if len(chRepo.deleted) != 1 || chRepo.deleted[0] != "ch-1" {
		t.Errorf("deleted = %v", chRepo.deleted)
	}
}

// TestServiceDelete_NotFound は未検出時のAPIエラーを検証する。
func TestServiceDelete_NotFound(t *testing.T) {
	chRepo := &mockChannelRepo{}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, NewRegistry())

	err := s.Delete(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeChannelNotFound {
		t.Errorf("Code = %s", apiErr.Code)
	}
}

// TestServiceTestSend はサンプルペイロードの送信を検証する。
func TestServiceTestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{
				ID:           id,
				SubscriberID: "sub-1",
				Kind:         model.ChannelKindSlack,
				Endpoint:     server.URL,
			}, nil
		},
	}
	registry := NewDefaultRegistry(server.Client())
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, registry)

	if err := s.TestSend(context.Background(), "ch-1"); err != nil {
		t.Fatalf("TestSend error: %v", err)
	}
}

// TestServiceTestSend_UnsupportedKind は未実装種別のテスト送信が
// エラーになることを検証する。
func TestServiceTestSend_UnsupportedKind(t *testing.T) {
	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{
				ID:           id,
				SubscriberID: "sub-1",
				Kind:         model.ChannelKindTeams,
				Endpoint:     "https://outlook.office.com/x",
			}, nil
		},
	}
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, NewDefaultRegistry(http.DefaultClient))

	err := s.TestSend(context.Background(), "ch-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidChannelKind {
		t.Errorf("Code = %s", apiErr.Code)
	}
}

// TestServiceTestSend_SendFailure は送信失敗がラップされて返ることを検証する。
func TestServiceTestSend_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	chRepo := &mockChannelRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Channel, error) {
			return &model.Channel{
				ID:           id,
				SubscriberID: "sub-1",
				Kind:         model.ChannelKindWebhook,
				Endpoint:     server.URL,
			}, nil
		},
	}
	registry := NewDefaultRegistry(server.Client())
	s := newChannelService(chRepo, &mockSubscriberFinder{}, allowAllGuard{}, registry)

	if err := s.TestSend(context.Background(), "ch-1"); err == nil {
		t.Fatal("送信失敗がエラーとして返るべき")
	}
}
