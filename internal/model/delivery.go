// Package model はドメインモデルを定義する。
package model

import "time"

// DeliveryStatus は配信結果の種別を表す。
// メールチャネルの結果がエントリ全体のステータスとなる。
type DeliveryStatus string

const (
	// DeliveryStatusSent は配信成功。
	DeliveryStatusSent DeliveryStatus = "sent"
	// DeliveryStatusFailed は配信失敗。
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// ChannelOutcome は1チャネルへの送信結果の種別を表す。
type ChannelOutcome string

const (
	// ChannelOutcomeSent は送信成功。
	ChannelOutcomeSent ChannelOutcome = "sent"
	// ChannelOutcomeFailed は送信失敗（トランスポートエラー含む）。
	ChannelOutcomeFailed ChannelOutcome = "failed"
	// ChannelOutcomeSkipped はエンドポイント未設定等によるスキップ。
	ChannelOutcomeSkipped ChannelOutcome = "skipped"
	// ChannelOutcomeUnsupported はアダプタ未実装のチャネル種別。
	ChannelOutcomeUnsupported ChannelOutcome = "unsupported"
)

// ChannelResult は1チャネルへの送信結果を表す。
// DeliveryのChannelResultsにJSONBとして保存される。
type ChannelResult struct {
	ChannelID string         `json:"channel_id,omitempty"`
	Kind      ChannelKind    `json:"kind"`
	Label     string         `json:"label,omitempty"`
	Outcome   ChannelOutcome `json:"outcome"`
	Error     string         `json:"error,omitempty"`
}

// Delivery は配信台帳のエントリを表す。
// (購読者, サイクル時刻)ごとに1件作成され、作成後は変更されない追記専用の監査記録。
// StatusとErrorMessageはメールチャネルの結果、ChannelResultsは
// Webhookチャネルを含む全チャネルの内訳を保持する。
type Delivery struct {
	ID             string
	SubscriberID   string
	CycleAt        time.Time
	ItemCount      int
	Status         DeliveryStatus
	ErrorMessage   string
	ChannelResults []ChannelResult
	CreatedAt      time.Time
}
