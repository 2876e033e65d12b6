package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdrop/internal/model"
)

// EndpointValidator はコンテンツソースURLの事前検証のインターフェース。
type EndpointValidator interface {
	ValidateEndpoint(rawURL string) error
}

// RSSFetcher は設定されたRSS/Atomフィードから記事を取得する。
// 各フィードURLはSSRF検証を通過したもののみフェッチされる。
type RSSFetcher struct {
	httpClient  *http.Client
	guard       EndpointValidator
	logger      *slog.Logger
	feedURLs    []string
	maxBodySize int64
}

// NewRSSFetcher はRSSFetcherの新しいインスタンスを生成する。
func NewRSSFetcher(
	httpClient *http.Client,
	guard EndpointValidator,
	logger *slog.Logger,
	feedURLs []string,
	maxBodySize int64,
) *RSSFetcher {
	return &RSSFetcher{
		httpClient:  httpClient,
		guard:       guard,
		logger:      logger,
		feedURLs:    feedURLs,
		maxBodySize: maxBodySize,
	}
}

// Configured はフィードURLが1件以上設定されているかを返す。
func (f *RSSFetcher) Configured() bool {
	return len(f.feedURLs) > 0
}

// FetchArticles は全フィードから記事を取得する。
// 個別フィードの失敗はログに記録して継続し、取得できた記事のみを返す。
// 全フィードが失敗した場合もエラーにはせず空スライスを返す。
func (f *RSSFetcher) FetchArticles(ctx context.Context) []model.FetchedItem {
	var items []model.FetchedItem
	for _, feedURL := range f.feedURLs {
		fetched, err := f.fetchFeed(ctx, feedURL)
		if err != nil {
			f.logger.Warn("フィードの取得に失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, fetched...)
	}
	return items
}

// fetchFeed は1フィードをフェッチしてパースする。
func (f *RSSFetcher) fetchFeed(ctx context.Context, feedURL string) ([]model.FetchedItem, error) {
	start := time.Now()

	// SSRF検証
	if err := f.guard.ValidateEndpoint(feedURL); err != nil {
		return nil, fmt.Errorf("SSRF検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Newsdrop/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("フィードがステータス %d を返しました", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	source := parsedFeed.Title
	if source == "" {
		source = feedURL
	}

	var items []model.FetchedItem
	for _, entry := range parsedFeed.Items {
		if entry == nil || entry.Title == "" || entry.Link == "" {
			continue
		}
		item := model.FetchedItem{
			Title:       entry.Title,
			URL:         entry.Link,
			Description: entry.Description,
			Source:      source,
			PublishedAt: entry.PublishedParsed,
		}
		if item.Description == "" {
			item.Description = entry.Content
		}
		items = append(items, item)
	}

	f.logger.Info("フィードから記事を取得しました",
		slog.String("feed_url", feedURL),
		slog.Int("article_count", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return items, nil
}
