package channel

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText はHTML断片をプレーンテキストに変換する。
// ブロック要素（p, br, li, div）の境界は改行に置き換え、
// script/style要素の中身は出力しない。
// Webhookペイロードではサニタイズ済みHTMLをそのまま送れないため、
// 送信前の変換に使用する。
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseBlankLines(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style":
				if tt == html.StartTagToken {
					skipDepth++
				}
			case "br", "p", "li", "div":
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "li", "div":
				b.WriteByte('\n')
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// collapseBlankLines は連続する空白行を1つにまとめ、前後の空白を除去する。
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
