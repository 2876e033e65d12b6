package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/repository"
)

// EndpointValidator はWebhookエンドポイントの安全性を検証するインターフェース。
type EndpointValidator interface {
	ValidateEndpoint(rawURL string) error
}

// CreateInput はチャネル登録の入力。
type CreateInput struct {
	SubscriberID string
	Kind         string
	Label        string
	Endpoint     string
}

// UpdateInput はチャネル更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Label    *string
	Endpoint *string
	IsActive *bool
}

// Service は通知チャネル管理のサービス層。
// チャネルのCRUDとテスト送信のビジネスロジックを提供する。
type Service struct {
	channelRepo repository.ChannelRepository
	subRepo     repository.SubscriberRepository
	guard       EndpointValidator
	registry    *Registry
	logger      *slog.Logger
	sendTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	channelRepo repository.ChannelRepository,
	subRepo repository.SubscriberRepository,
	guard EndpointValidator,
	registry *Registry,
	logger *slog.Logger,
	sendTimeout time.Duration,
) *Service {
	return &Service{
		channelRepo: channelRepo,
		subRepo:     subRepo,
		guard:       guard,
		registry:    registry,
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

// Create は購読者に新しい通知チャネルを登録する。
// エンドポイントはSSRFガードによる検証を通過する必要がある。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Channel, error) {
	sub, err := s.subRepo.FindByID(ctx, input.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriberNotFoundError(input.SubscriberID)
	}

	kind := model.ChannelKind(input.Kind)
	if !kind.IsValid() {
		return nil, model.NewInvalidChannelKindError(input.Kind)
	}

	endpoint := strings.TrimSpace(input.Endpoint)
	if endpoint == "" {
		return nil, model.NewMissingEndpointError()
	}
	if err := s.guard.ValidateEndpoint(endpoint); err != nil {
		s.logger.Warn("エンドポイントがブロックされました",
			slog.String("subscriber_id", input.SubscriberID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewEndpointBlockedError()
	}

	now := time.Now().UTC()
	ch := &model.Channel{
		ID:           uuid.New().String(),
		SubscriberID: input.SubscriberID,
		Kind:         kind,
		Label:        strings.TrimSpace(input.Label),
		Endpoint:     endpoint,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("チャネルの作成に失敗しました: %w", err)
	}

	s.logger.Info("チャネルを登録しました",
		slog.String("channel_id", ch.ID),
		slog.String("subscriber_id", ch.SubscriberID),
		slog.String("kind", string(ch.Kind)),
	)

	return ch, nil
}

// List は購読者の全チャネル一覧を返す。
func (s *Service) List(ctx context.Context, subscriberID string) ([]*model.Channel, error) {
	sub, err := s.subRepo.FindByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriberNotFoundError(subscriberID)
	}

	channels, err := s.channelRepo.ListBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("チャネル一覧の取得に失敗しました: %w", err)
	}
	return channels, nil
}

// Update はチャネルのラベル、エンドポイント、有効状態を更新する。
// エンドポイント変更時は再度SSRFガードを通す。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.Channel, error) {
	ch, err := s.findChannel(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Label != nil {
		ch.Label = strings.TrimSpace(*input.Label)
	}

	if input.Endpoint != nil {
		endpoint := strings.TrimSpace(*input.Endpoint)
		if endpoint == "" {
			return nil, model.NewMissingEndpointError()
		}
		if err := s.guard.ValidateEndpoint(endpoint); err != nil {
			return nil, model.NewEndpointBlockedError()
		}
		ch.Endpoint = endpoint
	}

	if input.IsActive != nil {
		ch.IsActive = *input.IsActive
	}

	ch.UpdatedAt = time.Now().UTC()

	if err := s.channelRepo.Update(ctx, ch); err != nil {
		return nil, fmt.Errorf("チャネルの更新に失敗しました: %w", err)
	}

	return ch, nil
}

// Delete は指定IDのチャネルを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.findChannel(ctx, id); err != nil {
		return err
	}

	if err := s.channelRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("チャネルの削除に失敗しました: %w", err)
	}

	s.logger.Info("チャネルを削除しました",
		slog.String("channel_id", id),
	)

	return nil
}

// TestSend はチャネルへサンプルペイロードを送信して導通を確認する。
func (s *Service) TestSend(ctx context.Context, id string) error {
	ch, err := s.findChannel(ctx, id)
	if err != nil {
		return err
	}

	sub, err := s.subRepo.FindByID(ctx, ch.SubscriberID)
	if err != nil {
		return fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return model.NewSubscriberNotFoundError(ch.SubscriberID)
	}

	adapter := s.registry.Get(ch.Kind)
	if adapter == nil {
		return model.NewInvalidChannelKindError(string(ch.Kind))
	}

	items := []*model.Item{
		{
			ID:          uuid.New().String(),
			Title:       "Test Notification",
			URL:         "https://example.com/test",
			Description: "This is a test notification to verify your channel configuration.",
			Source:      "Newsdrop",
		},
	}

	msg, err := adapter.Format(sub, items, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("テストペイロードの構築に失敗しました: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := adapter.Send(sendCtx, sub, ch, msg); err != nil {
		return fmt.Errorf("テスト送信に失敗しました: %w", err)
	}

	s.logger.Info("テスト送信が完了しました",
		slog.String("channel_id", id),
		slog.String("kind", string(ch.Kind)),
	)

	return nil
}

// findChannel はチャネルを取得し、未検出をAPIエラーに変換する。
func (s *Service) findChannel(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := s.channelRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("チャネルの取得に失敗しました: %w", err)
	}
	if ch == nil {
		return nil, model.NewChannelNotFoundError(id)
	}
	return ch, nil
}
