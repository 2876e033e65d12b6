// Package subscriber は購読者管理のドメインロジックを提供する。
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/repository"
)

// 新規購読のデフォルト値
const (
	defaultPreferredHour   = 10
	defaultPreferredMinute = 0
	defaultTimezone        = "Asia/Kolkata"
	defaultMaxItems        = 5

	maxItemsUpperBound = 20
)

// SubscribeInput は購読登録の入力。
// 未指定のフィールドにはデフォルト値が適用される。
type SubscribeInput struct {
	Email         string
	PreferredTime string // "HH:MM"形式。未指定は"10:00"
	Timezone      string
	Cadence       string
	MaxItems      *int
}

// UpdateInput は配信設定更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	PreferredTime *string
	Timezone      *string
	Cadence       *string
	MaxItems      *int
	IsActive      *bool
}

// Service は購読者管理のサービス層。
// 登録、設定更新、停止（論理削除）のビジネスロジックを提供する。
type Service struct {
	subRepo repository.SubscriberRepository
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriberRepository, logger *slog.Logger) *Service {
	return &Service{
		subRepo: subRepo,
		logger:  logger,
	}
}

// Subscribe は新しい購読者を登録する。
// メールアドレスが登録済みの場合はエラーを返す。
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*model.Subscriber, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	existing, err := s.subRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSubscriberError(email)
	}

	hour, minute := defaultPreferredHour, defaultPreferredMinute
	if input.PreferredTime != "" {
		hour, minute, err = parsePreferredTime(input.PreferredTime)
		if err != nil {
			return nil, err
		}
	}

	tz := defaultTimezone
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return nil, model.NewInvalidTimezoneError(input.Timezone)
		}
		tz = input.Timezone
	}

	cadence := model.CadenceDaily
	if input.Cadence != "" {
		cadence, err = parseCadence(input.Cadence)
		if err != nil {
			return nil, err
		}
	}

	maxItems := defaultMaxItems
	if input.MaxItems != nil {
		if err := validateMaxItems(*input.MaxItems); err != nil {
			return nil, err
		}
		maxItems = *input.MaxItems
	}

	now := time.Now().UTC()
	sub := &model.Subscriber{
		ID:              uuid.New().String(),
		Email:           email,
		IsActive:        true,
		PreferredHour:   hour,
		PreferredMinute: minute,
		Timezone:        tz,
		Cadence:         cadence,
		MaxItems:        maxItems,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}

	s.logger.Info("購読者を登録しました",
		slog.String("subscriber_id", sub.ID),
		slog.String("timezone", sub.Timezone),
		slog.String("cadence", string(sub.Cadence)),
	)

	return sub, nil
}

// Get は指定IDの購読者を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Subscriber, error) {
	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriberNotFoundError(id)
	}
	return sub, nil
}

// UpdatePreferences は購読者の配信設定を更新する。
// nilのフィールドは元の値を維持する。
func (s *Service) UpdatePreferences(ctx context.Context, id string, input UpdateInput) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.PreferredTime != nil {
		hour, minute, err := parsePreferredTime(*input.PreferredTime)
		if err != nil {
			return nil, err
		}
		sub.PreferredHour = hour
		sub.PreferredMinute = minute
	}

	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil {
			return nil, model.NewInvalidTimezoneError(*input.Timezone)
		}
		sub.Timezone = *input.Timezone
	}

	if input.Cadence != nil {
		cadence, err := parseCadence(*input.Cadence)
		if err != nil {
			return nil, err
		}
		sub.Cadence = cadence
	}

	if input.MaxItems != nil {
		if err := validateMaxItems(*input.MaxItems); err != nil {
			return nil, err
		}
		sub.MaxItems = *input.MaxItems
	}

	if input.IsActive != nil {
		sub.IsActive = *input.IsActive
	}

	sub.UpdatedAt = time.Now().UTC()

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("購読者の更新に失敗しました: %w", err)
	}

	return sub, nil
}

// Deactivate は購読を停止する。行は削除せず、is_activeのみ下げる。
// 配信履歴とウォーターマークは保持され、再開時のケイデンス判定に使われる。
func (s *Service) Deactivate(ctx context.Context, id string) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sub.IsActive {
		return nil
	}

	sub.IsActive = false
	sub.UpdatedAt = time.Now().UTC()

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("購読者の停止に失敗しました: %w", err)
	}

	s.logger.Info("購読を停止しました",
		slog.String("subscriber_id", id),
	)

	return nil
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewInvalidEmailError(email)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewInvalidEmailError(email)
	}
	return nil
}

// parsePreferredTime は"HH:MM"形式の配信時刻を時と分に分解する。
func parsePreferredTime(value string) (hour, minute int, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, model.NewInvalidTimeError(value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, model.NewInvalidTimeError(value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, model.NewInvalidTimeError(value)
	}
	return hour, minute, nil
}

// parseCadence は配信頻度文字列を検証して返す。
func parseCadence(value string) (model.Cadence, error) {
	cadence := model.Cadence(value)
	if !cadence.IsValid() {
		return "", model.NewInvalidCadenceError(value)
	}
	return cadence, nil
}

// validateMaxItems は記事数上限の範囲を検証する。
func validateMaxItems(maxItems int) error {
	if maxItems < 1 || maxItems > maxItemsUpperBound {
		return model.NewInvalidMaxItemsError(maxItems)
	}
	return nil
}
