package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// WebhookAdapter は汎用JSON Webhookへ記事セットを送信するアダプタ。
// 送信先の規約を仮定せず、2xx応答を成功とみなす。
type WebhookAdapter struct {
	httpClient *http.Client
}

// NewWebhookAdapter はWebhookAdapterの新しいインスタンスを生成する。
func NewWebhookAdapter(httpClient *http.Client) *WebhookAdapter {
	return &WebhookAdapter{httpClient: httpClient}
}

// Kind は汎用Webhookチャネル種別を返す。
func (a *WebhookAdapter) Kind() model.ChannelKind {
	return model.ChannelKindWebhook
}

// webhookPayload は汎用Webhookに送信するJSONペイロード。
type webhookPayload struct {
	Subscriber string           `json:"subscriber"`
	CycleAt    string           `json:"cycle_at"`
	Articles   []webhookArticle `json:"articles"`
}

// webhookArticle は1記事分のペイロード。
type webhookArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Format はプレーンなJSONペイロードを構築する。
// サマリーのHTMLはプレーンテキストに変換される。
func (a *WebhookAdapter) Format(sub *model.Subscriber, items []*model.Item, cycleAt time.Time) (*Message, error) {
	payload := webhookPayload{
		Subscriber: sub.Email,
		CycleAt:    cycleAt.UTC().Format(time.RFC3339),
		Articles:   make([]webhookArticle, 0, len(items)),
	}
	for _, item := range items {
		payload.Articles = append(payload.Articles, webhookArticle{
			Title:       item.Title,
			URL:         item.URL,
			Description: item.Description,
			Summary:     htmlToText(item.Summary),
			Source:      item.Source,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("Webhookペイロードのシリアライズに失敗しました: %w", err)
	}
	return &Message{Body: body, ContentType: "application/json"}, nil
}

// Send はペイロードをエンドポイントへPOSTする。2xx応答を成功とみなす。
func (a *WebhookAdapter) Send(ctx context.Context, _ *model.Subscriber, ch *model.Channel, msg *Message) error {
	if ch == nil || ch.Endpoint == "" {
		return fmt.Errorf("エンドポイントが設定されていません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.Endpoint, bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", msg.ContentType)
	req.Header.Set("User-Agent", "Newsdrop/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Webhookへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhookがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}

// compile-time interface check
var _ Adapter = (*WebhookAdapter)(nil)
