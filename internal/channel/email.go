package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/newsdrop/internal/mailer"
	"github.com/hitoshi/newsdrop/internal/model"
)

// KindEmail はメールチャネルの内部識別子。
// メールは購読者に暗黙的に付属するためchannelsテーブルには現れないが、
// 配信結果の内訳ではこの種別で記録される。
const KindEmail model.ChannelKind = "email"

// EmailAdapter はHTMLダイジェストメールを送信するアダプタ。
type EmailAdapter struct {
	sender mailer.EmailSender
}

// NewEmailAdapter はEmailAdapterの新しいインスタンスを生成する。
func NewEmailAdapter(sender mailer.EmailSender) *EmailAdapter {
	return &EmailAdapter{sender: sender}
}

// Kind はメールチャネル種別を返す。
func (a *EmailAdapter) Kind() model.ChannelKind {
	return KindEmail
}

// Format はダイジェストメールの件名とHTML本文を構築する。
func (a *EmailAdapter) Format(sub *model.Subscriber, items []*model.Item, cycleAt time.Time) (*Message, error) {
	subject, body, err := mailer.RenderDigest(sub.Email, items, cycleAt.Format(cycleDateFormat))
	if err != nil {
		return nil, err
	}
	return &Message{
		Subject:     subject,
		Body:        []byte(body),
		ContentType: "text/html",
	}, nil
}

// Send はダイジェストメールを購読者のアドレスへ送信する。
func (a *EmailAdapter) Send(ctx context.Context, sub *model.Subscriber, _ *model.Channel, msg *Message) error {
	if err := a.sender.Send(ctx, sub.Email, msg.Subject, string(msg.Body)); err != nil {
		return fmt.Errorf("メールの送信に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Adapter = (*EmailAdapter)(nil)
