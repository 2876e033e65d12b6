// Package model はドメインモデルを定義する。
package model

import "time"

// Cadence は配信頻度を表す。
type Cadence string

const (
	// CadenceDaily は毎日配信。
	CadenceDaily Cadence = "daily"
	// CadenceWeekly は週1回配信。
	CadenceWeekly Cadence = "weekly"
	// CadenceMonthly は月1回配信。
	CadenceMonthly Cadence = "monthly"
)

// IsValid はCadenceが定義済みの値かを検証する。
func (c Cadence) IsValid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// MinIntervalDays はこのCadenceで再配信までに必要な最小経過日数を返す。
func (c Cadence) MinIntervalDays() int {
	switch c {
	case CadenceWeekly:
		return 7
	case CadenceMonthly:
		return 30
	default:
		return 1
	}
}

// Subscriber はニュース配信の購読者を表す。
// PreferredHour/PreferredMinuteはTimezoneのローカル時刻で解釈される。
// LastDeliveredAtはメール配信成功時のウォーターマークで、
// 配信対象判定のケイデンスゲートに使用される。
type Subscriber struct {
	ID              string
	Email           string
	IsActive        bool
	PreferredHour   int
	PreferredMinute int
	Timezone        string
	Cadence         Cadence
	MaxItems        int
	LastDeliveredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChannelKind は通知チャネルの種別を表す。
// メールは購読者に暗黙的に付属するため、channelsテーブルには
// Webhook系のチャネルのみが登録される。
type ChannelKind string

const (
	// ChannelKindSlack はSlack Incoming Webhook。
	ChannelKindSlack ChannelKind = "slack"
	// ChannelKindTeams はMicrosoft Teams Webhook。アダプタは未実装。
	ChannelKindTeams ChannelKind = "teams"
	// ChannelKindWebhook は汎用JSON Webhook。
	ChannelKindWebhook ChannelKind = "webhook"
)

// IsValid はChannelKindが定義済みの値かを検証する。
func (k ChannelKind) IsValid() bool {
	switch k {
	case ChannelKindSlack, ChannelKindTeams, ChannelKindWebhook:
		return true
	}
	return false
}

// Channel は購読者に紐付く通知チャネルを表す。
// 1つのSubscriberに属し、Subscriber削除時はCASCADE削除される。
// Webhook系チャネルは空でないEndpointを持たない限り配信対象にならない。
type Channel struct {
	ID           string
	SubscriberID string
	Kind         ChannelKind
	Label        string
	Endpoint     string
	IsActive     bool
	LastSentAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
