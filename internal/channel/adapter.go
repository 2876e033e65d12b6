// Package channel は通知チャネルへの配信アダプタを提供する。
// メール・Slack・汎用Webhookの各アダプタと、チャネル種別から
// アダプタを引くレジストリを含む。
package channel

import (
	"context"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// Message はアダプタが構築した送信可能なペイロードを表す。
type Message struct {
	// Subject はメールの件名。Webhook系アダプタでは空。
	Subject string
	// Body はペイロード本体。メールはHTML、WebhookはJSON。
	Body []byte
	// ContentType はBodyのMIMEタイプ。
	ContentType string
}

// Adapter は1チャネル種別への配信機能のインターフェースを定義する。
// FormatとSendを分離することで、ペイロード構築の失敗と
// トランスポートの失敗を区別して記録できる。
type Adapter interface {
	// Kind はこのアダプタが処理するチャネル種別を返す。
	Kind() model.ChannelKind

	// Format は購読者向けの記事セットから送信ペイロードを構築する。
	// itemsは購読者のmax_itemsで切り詰め済みであること。
	Format(sub *model.Subscriber, items []*model.Item, cycleAt time.Time) (*Message, error)

	// Send はペイロードをチャネルへ送信する。
	// chはWebhook系アダプタのエンドポイント解決に使用される。
	// メールアダプタはchを使用しない（nilが渡される）。
	Send(ctx context.Context, sub *model.Subscriber, ch *model.Channel, msg *Message) error
}

// cycleDateFormat は人間向けのサイクル日付表示形式。
const cycleDateFormat = "Monday, January 2, 2006"
