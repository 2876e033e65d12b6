package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は取得した記事コンテンツのサニタイズ機能の
// インターフェースを定義する。記事の保存前に適用され、
// メールダイジェストおよびAPI応答に安全なコンテンツのみが渡ることを保証する。
type ContentSanitizerService interface {
	// Sanitize は記事本文のHTMLをサニタイズして安全なHTMLを返す。
	// メールダイジェストで使用する最小限のインライン装飾
	// （a, strong, em, p, br）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// SanitizeText はHTMLタグを全て除去したプレーンテキストを返す。
	// 記事タイトルとソース名に適用される。前後の空白は除去される。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	bodyPolicy *bluemonday.Policy
	textPolicy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時に2つのbluemondayポリシーを構築する:
//   - 本文用: a, strong, em, p, br のみ許可。aタグはhref属性付きで
//     rel="noopener noreferrer"を強制付与
//   - テキスト用: 全タグを除去するStrictPolicy
func NewContentSanitizer() *contentSanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements("p", "br", "strong", "em")
	body.AllowAttrs("href").OnElements("a")
	body.AllowStandardURLs()
	body.AllowRelativeURLs(false)
	body.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		bodyPolicy: body,
		textPolicy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は記事本文のHTMLをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.bodyPolicy.Sanitize(rawHTML)
}

// SanitizeText はHTMLタグを全て除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.textPolicy.Sanitize(raw))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
