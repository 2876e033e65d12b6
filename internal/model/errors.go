// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, subscriber, channel, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSubscriberNotFound  = "SUBSCRIBER_NOT_FOUND"
	ErrCodeDuplicateSubscriber = "DUPLICATE_SUBSCRIBER"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeInvalidTimezone     = "INVALID_TIMEZONE"
	ErrCodeInvalidCadence      = "INVALID_CADENCE"
	ErrCodeInvalidTime         = "INVALID_TIME"
	ErrCodeInvalidMaxItems     = "INVALID_MAX_ITEMS"
	ErrCodeChannelNotFound     = "CHANNEL_NOT_FOUND"
	ErrCodeInvalidChannelKind  = "INVALID_CHANNEL_KIND"
	ErrCodeMissingEndpoint     = "MISSING_ENDPOINT"
	ErrCodeEndpointBlocked     = "ENDPOINT_BLOCKED"
	ErrCodeDispatchInProgress  = "DISPATCH_IN_PROGRESS"
)

// NewSubscriberNotFoundError は購読者未検出エラーを生成する。
func NewSubscriberNotFoundError(subscriberID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriberNotFound,
		Message:  fmt.Sprintf("指定された購読者が見つかりません: %s", subscriberID),
		Category: "subscriber",
		Action:   "購読者IDを確認してください。",
	}
}

// NewDuplicateSubscriberError は既に登録済みのメールアドレスで再登録しようとした場合のエラーを生成する。
func NewDuplicateSubscriberError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSubscriber,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "subscriber",
		Action:   "登録済みの購読者設定を更新してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレス形式を入力してください。",
	}
}

// NewInvalidTimezoneError は解決できないタイムゾーン識別子エラーを生成する。
func NewInvalidTimezoneError(tz string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("無効なタイムゾーンです: %s", tz),
		Category: "validation",
		Action:   "IANAタイムゾーン識別子（例: Asia/Tokyo）を指定してください。",
	}
}

// NewInvalidCadenceError は無効な配信頻度エラーを生成する。
func NewInvalidCadenceError(cadence string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCadence,
		Message:  fmt.Sprintf("無効な配信頻度です: %s", cadence),
		Category: "validation",
		Action:   "配信頻度には daily、weekly、monthly のいずれかを指定してください。",
	}
}

// NewInvalidTimeError は無効な配信時刻エラーを生成する。
func NewInvalidTimeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTime,
		Message:  fmt.Sprintf("無効な配信時刻です: %s", value),
		Category: "validation",
		Action:   "配信時刻はHH:MM形式（例: 10:00）で指定してください。",
	}
}

// NewInvalidMaxItemsError は無効な記事数上限エラーを生成する。
func NewInvalidMaxItemsError(maxItems int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMaxItems,
		Message:  fmt.Sprintf("無効な記事数上限です: %d", maxItems),
		Category: "validation",
		Action:   "記事数上限は1件から20件の範囲で指定してください。",
	}
}

// NewChannelNotFoundError はチャネル未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("指定されたチャネルが見つかりません: %s", channelID),
		Category: "channel",
		Action:   "チャネルIDを確認してください。",
	}
}

// NewInvalidChannelKindError は無効なチャネル種別エラーを生成する。
func NewInvalidChannelKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChannelKind,
		Message:  fmt.Sprintf("無効なチャネル種別です: %s", kind),
		Category: "validation",
		Action:   "チャネル種別には slack、teams、webhook のいずれかを指定してください。",
	}
}

// NewMissingEndpointError はWebhookエンドポイント未設定エラーを生成する。
func NewMissingEndpointError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingEndpoint,
		Message:  "WebhookチャネルにはエンドポイントURLが必要です。",
		Category: "validation",
		Action:   "Webhook URLを指定してください。",
	}
}

// NewEndpointBlockedError はSSRFブロックエラーを生成する。
func NewEndpointBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeEndpointBlocked,
		Message:  "セキュリティポリシーにより、指定されたエンドポイントへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebhook URLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewDispatchInProgressError は配信パス実行中の手動トリガー重複エラーを生成する。
func NewDispatchInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeDispatchInProgress,
		Message:  "配信パスが既に実行中です。",
		Category: "system",
		Action:   "実行中のパスが完了してから再度お試しください。",
	}
}
