// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// SubscriberRepository は購読者データの永続化インターフェース。
type SubscriberRepository interface {
	// FindByID は指定IDの購読者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subscriber, error)

	// FindByEmail はメールアドレスで購読者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// Create は購読者を作成する。
	Create(ctx context.Context, sub *model.Subscriber) error

	// Update は購読者の配信設定を更新する。
	// is_active、preferred_hour、preferred_minute、timezone、cadence、max_itemsを更新する。
	Update(ctx context.Context, sub *model.Subscriber) error

	// ListActive はアクティブな購読者の一覧を返す。
	// 配信対象判定の入力として各ティックで呼び出される。
	ListActive(ctx context.Context) ([]*model.Subscriber, error)

	// UpdateWatermark は配信成功時のウォーターマーク（last_delivered_at）を更新する。
	UpdateWatermark(ctx context.Context, id string, deliveredAt time.Time) error

	// CountByActive はアクティブ/非アクティブ別の購読者数を返す。
	CountByActive(ctx context.Context) (active int, inactive int, err error)
}

// ChannelRepository は通知チャネルデータの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)

	// Create はチャネルを作成する。
	Create(ctx context.Context, ch *model.Channel) error

	// Update はチャネルのkind、label、endpoint、is_activeを更新する。
	Update(ctx context.Context, ch *model.Channel) error

	// Delete は指定IDのチャネルを削除する。
	Delete(ctx context.Context, id string) error

	// ListBySubscriberID は購読者の全チャネル一覧を返す。
	ListBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error)

	// ListActiveBySubscriberID は購読者のアクティブなチャネル一覧を返す。
	// 配信パスでのファンアウト対象として使用される。
	ListActiveBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error)

	// UpdateLastSent はチャネルの最終送信日時を更新する。
	UpdateLastSent(ctx context.Context, id string, sentAt time.Time) error
}

// ItemRepository は記事データの永続化インターフェース。
type ItemRepository interface {
	// UpsertByURL はURLをサイクル内の冪等キーとして記事をUPSERTする。
	// 既存URLの場合はtitle、description、summary、source、fetched_atを上書きする。
	// 戻り値は新規挿入されたかどうか。
	UpsertByURL(ctx context.Context, item *model.Item) (inserted bool, err error)

	// ListLatest は直近に取得した記事をfetched_at降順で返す。
	ListLatest(ctx context.Context, limit int) ([]*model.Item, error)

	// DeleteOlderThan は指定日時より前に取得された記事を削除する。
	// 削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryRepository は配信台帳の永続化インターフェース。
// 台帳は追記専用: Recordで作成されたエントリは変更・削除されない
// （保持期間超過分のクリーンアップを除く）。
type DeliveryRepository interface {
	// Record は配信台帳エントリを作成する。
	// (subscriber_id, cycle_at)の一意制約により、同一サイクルの二重記録は失敗する。
	Record(ctx context.Context, d *model.Delivery) error

	// ListBySubscriberID は購読者の配信履歴をcycle_at降順で返す。
	ListBySubscriberID(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error)

	// CountByStatusSince は指定日時以降の配信結果をステータス別に集計する。
	CountByStatusSince(ctx context.Context, since time.Time) (sent int, failed int, err error)

	// DeleteOlderThan は指定日時より前のサイクルの台帳エントリを削除する。
	// 削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
