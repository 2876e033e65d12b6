// Package news はコンテンツプロバイダを提供する。
// News API・RSSフィードからの記事取得、サニタイズ、フォールバック記事、
// サイクル単位での記事保存を含む。
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

const (
	// defaultAPIEndpoint はNews APIの記事検索エンドポイント。
	defaultAPIEndpoint = "https://newsapi.org/v2/everything"
	// defaultQuery はAI関連記事の検索クエリ。
	defaultQuery = `artificial intelligence OR machine learning OR AI OR "deep learning" OR "neural networks" OR OpenAI OR ChatGPT`
)

// APIClient はNews APIのクライアント。
// 検索エンドポイントを使用して直近24時間のAI関連記事を取得する。
type APIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	pageSize   int
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewAPIClient はAPIClientの新しいインスタンスを生成する。
// endpointが空の場合はNews APIの標準エンドポイントを使用する。
func NewAPIClient(httpClient *http.Client, logger *slog.Logger, apiKey, endpoint string, pageSize int) *APIClient {
	if endpoint == "" {
		endpoint = defaultAPIEndpoint
	}
	return &APIClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		pageSize:   pageSize,
		endpoint:   endpoint,
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *APIClient) Configured() bool {
	return c.apiKey != ""
}

// apiResponse はNews APIのレスポンス形式。
type apiResponse struct {
	Status   string       `json:"status"`
	Articles []apiArticle `json:"articles"`
}

// apiArticle はNews APIの記事形式。
type apiArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// FetchArticles は直近24時間のAI関連記事を取得する。
// タイトル・URL・説明のいずれかが欠けた記事、および
// 削除済みマーカー付きの記事は除外される。
// 取得失敗時はエラーを返す（呼び出し元がフォールバックを判断する）。
func (c *APIClient) FetchArticles(ctx context.Context, now time.Time) ([]model.FetchedItem, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("News APIキーが設定されていません")
	}

	// リクエストURL構築
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("q", defaultQuery)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("from", now.Add(-24*time.Hour).UTC().Format("2006-01-02"))
	q.Set("pageSize", fmt.Sprintf("%d", c.pageSize))
	q.Set("apiKey", c.apiKey)
	reqURL.RawQuery = q.Encode()

	// HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Newsdrop/1.0")
	req.Header.Set("Accept", "application/json")

	// HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("News APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("News APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	// HTTPステータスチェック
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("News APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("News APIがステータス %d を返しました", resp.StatusCode)
	}

	// レスポンスボディ読み取り
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
	}

	var items []model.FetchedItem
	for _, a := range parsed.Articles {
		if !isUsableArticle(a) {
			continue
		}
		item := model.FetchedItem{
			Title:       a.Title,
			URL:         a.URL,
			Description: a.Description,
			Source:      a.Source.Name,
		}
		if item.Source == "" {
			item.Source = "Unknown"
		}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = &t
		}
		items = append(items, item)
	}

	c.logger.Info("News APIから記事を取得しました",
		slog.Int("article_count", len(items)),
	)
	return items, nil
}

// isUsableArticle は記事が配信に使用可能かを判定する。
// News APIは削除済み記事をタイトル"[Removed]"で返すため除外する。
func isUsableArticle(a apiArticle) bool {
	if a.Title == "" || a.URL == "" || a.Description == "" {
		return false
	}
	if a.Title == "[Removed]" {
		return false
	}
	if strings.Contains(strings.ToLower(a.Description), "removed") {
		return false
	}
	return true
}
