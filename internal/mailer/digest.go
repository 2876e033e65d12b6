package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/hitoshi/newsdrop/internal/model"
)

// digestSubject はニュースダイジェストメールの件名。
const digestSubject = "Your Daily AI News Update"

// digestTemplate はダイジェストメールのHTMLテンプレート。
// html/templateの自動エスケープにより記事フィールドはエスケープされる。
// Summaryはサニタイズ済みHTMLのためtemplate.HTMLとして埋め込む。
var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
</head>
<body style="font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto; color: #222;">
  <h1 style="color: #1a73e8;">AI News Digest</h1>
  <p>{{.Date}}</p>
  {{range .Articles}}
  <div style="border-bottom: 1px solid #ddd; padding: 16px 0;">
    <h2 style="font-size: 18px; margin: 0 0 8px;"><a href="{{.URL}}" style="color: #1a73e8; text-decoration: none;">{{.Title}}</a></h2>
    <p style="color: #666; font-size: 12px; margin: 0 0 8px;">{{.Source}}</p>
    <p style="margin: 0 0 8px;">{{.Description}}</p>
    {{if .Summary}}<div style="background: #f5f7fa; padding: 8px 12px; font-size: 14px; white-space: pre-line;">{{.Summary}}</div>{{end}}
  </div>
  {{end}}
  <p style="color: #999; font-size: 12px; margin-top: 24px;">
    This digest was sent to {{.Email}}. Update your preferences to change the delivery time or frequency.
  </p>
</body>
</html>
`))

// digestData はテンプレートに渡すデータ。
type digestData struct {
	Date     string
	Email    string
	Articles []digestArticle
}

// digestArticle は1記事分の表示データ。
type digestArticle struct {
	Title       string
	URL         string
	Source      string
	Description string
	Summary     template.HTML
}

// RenderDigest はダイジェストメールの件名とHTML本文を生成する。
// cycleDateは"Monday, January 2, 2006"形式で表示される。
func RenderDigest(email string, items []*model.Item, cycleDate string) (subject string, htmlBody string, err error) {
	data := digestData{
		Date:  cycleDate,
		Email: email,
	}
	for _, item := range items {
		data.Articles = append(data.Articles, digestArticle{
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			Description: item.Description,
			Summary:     template.HTML(item.Summary),
		})
	}

	var buf strings.Builder
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("ダイジェストの生成に失敗しました: %w", err)
	}
	return digestSubject, buf.String(), nil
}
