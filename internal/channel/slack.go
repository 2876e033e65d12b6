package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// slackMaxArticles はSlackメッセージに含める記事数の上限。
// blocksが長くなりすぎると可読性が落ちるため4件に制限する。
const slackMaxArticles = 4

// SlackAdapter はSlack Incoming Webhookへblocks形式のメッセージを
// 送信するアダプタ。
type SlackAdapter struct {
	httpClient *http.Client
}

// NewSlackAdapter はSlackAdapterの新しいインスタンスを生成する。
func NewSlackAdapter(httpClient *http.Client) *SlackAdapter {
	return &SlackAdapter{httpClient: httpClient}
}

// Kind はSlackチャネル種別を返す。
func (a *SlackAdapter) Kind() model.ChannelKind {
	return model.ChannelKindSlack
}

// slackBlock はSlack Block Kitの1ブロック。
// 構造が多様なためmapで構築する。
type slackBlock map[string]any

// Format はSlack Block Kit形式のペイロードを構築する。
// 記事は最大4件まで。各記事はタイトル・ソース・リンクボタンのセクションと
// サマリー・説明のコンテキストで構成される。
func (a *SlackAdapter) Format(sub *model.Subscriber, items []*model.Item, cycleAt time.Time) (*Message, error) {
	var payload map[string]any

	if len(items) == 0 {
		payload = map[string]any{
			"text": "Daily AI News Update - No articles today",
			"blocks": []slackBlock{
				{
					"type": "header",
					"text": map[string]any{"type": "plain_text", "text": "Daily AI News Update"},
				},
				{
					"type": "section",
					"text": map[string]any{"type": "mrkdwn", "text": "No AI news articles available today. Check back tomorrow!"},
				},
			},
		}
	} else {
		shown := items
		if len(shown) > slackMaxArticles {
			shown = shown[:slackMaxArticles]
		}

		blocks := []slackBlock{
			{
				"type": "header",
				"text": map[string]any{
					"type":  "plain_text",
					"text":  fmt.Sprintf("Daily AI News Update (%d articles)", len(items)),
					"emoji": true,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("%s • For: `%s`", cycleAt.Format(cycleDateFormat), sub.Email),
					},
				},
			},
			{"type": "divider"},
		}

		for i, item := range shown {
			blocks = append(blocks, slackBlock{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%d. %s*\n_%s_", i+1, item.Title, item.Source),
				},
				"accessory": map[string]any{
					"type":      "button",
					"text":      map[string]any{"type": "plain_text", "text": "Read Article", "emoji": true},
					"url":       item.URL,
					"action_id": fmt.Sprintf("read_article_%d", i+1),
				},
			})
			if item.Summary != "" {
				summary := strings.ReplaceAll(htmlToText(item.Summary), "•", "▪")
				blocks = append(blocks, slackBlock{
					"type": "section",
					"text": map[string]any{"type": "mrkdwn", "text": "*Summary:*\n" + summary},
				})
			}
			if item.Description != "" {
				blocks = append(blocks, slackBlock{
					"type": "context",
					"elements": []map[string]any{
						{"type": "mrkdwn", "text": item.Description},
					},
				})
			}
			if i < len(shown)-1 {
				blocks = append(blocks, slackBlock{"type": "divider"})
			}
		}

		payload = map[string]any{
			"text":         fmt.Sprintf("Daily AI News Update - %d articles", len(items)),
			"blocks":       blocks,
			"unfurl_links": false,
			"unfurl_media": false,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("Slackペイロードのシリアライズに失敗しました: %w", err)
	}
	return &Message{Body: body, ContentType: "application/json"}, nil
}

// Send はペイロードをSlack Incoming Webhookへ送信する。
// Slackの規約により、成功はレスポンスボディが"ok"の場合のみ。
func (a *SlackAdapter) Send(ctx context.Context, _ *model.Subscriber, ch *model.Channel, msg *Message) error {
	if ch == nil || ch.Endpoint == "" {
		return fmt.Errorf("エンドポイントが設定されていません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.Endpoint, bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", msg.ContentType)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Slack Webhookへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Slack Webhookがステータス %d を返しました: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("Slack Webhookが予期しない応答を返しました: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// compile-time interface check
var _ Adapter = (*SlackAdapter)(nil)
