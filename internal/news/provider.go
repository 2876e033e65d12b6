package news

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/repository"
)

// maxCycleItems は1サイクルで保持する記事数の上限。
// 購読者ごとのmax_items上限（20）を下回らないこと。
const maxCycleItems = 20

// descriptionLimit は記事説明の最大文字数。
const descriptionLimit = 250

// Sanitizer は記事コンテンツのサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	SanitizeText(raw string) string
}

// ProviderService はコンテンツプロバイダのインターフェースを定義する。
// ディスパッチャは配信対象が存在するティックごとに1回だけFetchCycleを呼び出す。
type ProviderService interface {
	// FetchCycle は1配信サイクル分の記事セットを取得する。
	// 全ソースが失敗または空結果の場合はフォールバック記事を返すため、
	// 戻り値が空になることはない。
	FetchCycle(ctx context.Context, now time.Time) []*model.Item
}

// Provider はProviderServiceの実装。
// News APIとRSSフィードから記事を収集し、サニタイズして保存する。
type Provider struct {
	api       *APIClient
	rss       *RSSFetcher
	sanitizer Sanitizer
	itemRepo  repository.ItemRepository
	logger    *slog.Logger
}

// NewProvider はProviderの新しいインスタンスを生成する。
func NewProvider(
	api *APIClient,
	rss *RSSFetcher,
	sanitizer Sanitizer,
	itemRepo repository.ItemRepository,
	logger *slog.Logger,
) *Provider {
	return &Provider{
		api:       api,
		rss:       rss,
		sanitizer: sanitizer,
		itemRepo:  itemRepo,
		logger:    logger,
	}
}

// FetchCycle は1配信サイクル分の記事セットを取得する。
// ソースの優先順位: News API → RSSフィード → フォールバック。
// News APIとRSSの結果はマージされ、公開日時の新しい順に上限まで採用される。
// 記事の保存失敗はログに記録して継続する（配信はメモリ上の記事で行える）。
func (p *Provider) FetchCycle(ctx context.Context, now time.Time) []*model.Item {
	var fetched []model.FetchedItem

	if p.api.Configured() {
		articles, err := p.api.FetchArticles(ctx, now)
		if err != nil {
			p.logger.Warn("News APIからの取得に失敗しました。他のソースを試行します",
				slog.String("error", err.Error()),
			)
		} else {
			fetched = append(fetched, articles...)
		}
	}

	if p.rss.Configured() {
		fetched = append(fetched, p.rss.FetchArticles(ctx)...)
	}

	if len(fetched) == 0 {
		p.logger.Warn("全ソースから記事を取得できませんでした。フォールバック記事を使用します")
		fetched = fallbackArticles()
	}

	// 公開日時の新しい順に並べる。公開日時がない記事は末尾に回す。
	sort.SliceStable(fetched, func(i, j int) bool {
		a, b := fetched[i].PublishedAt, fetched[j].PublishedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	items := p.buildItems(fetched, now)

	// サニタイズや重複排除で全記事が除外された場合もフォールバックする。
	// 配信対象が存在するサイクルで記事0件の配信を行わないため。
	if len(items) == 0 {
		p.logger.Warn("取得した記事がすべて除外されました。フォールバック記事を使用します")
		items = p.buildItems(fallbackArticles(), now)
	}

	p.persist(ctx, items)

	p.logger.Info("配信サイクルの記事セットを確定しました",
		slog.Int("item_count", len(items)),
	)
	return items
}

// buildItems は取得済み記事をサニタイズ・重複排除して記事セットを構築する。
// URLが重複する記事とタイトルがサニタイズ後に空になる記事は除外される。
func (p *Provider) buildItems(fetched []model.FetchedItem, now time.Time) []*model.Item {
	items := make([]*model.Item, 0, maxCycleItems)
	seen := make(map[string]bool)
	for _, f := range fetched {
		if len(items) >= maxCycleItems {
			break
		}
		if seen[f.URL] {
			continue
		}
		seen[f.URL] = true

		item := &model.Item{
			ID:          uuid.New().String(),
			Title:       p.sanitizer.SanitizeText(f.Title),
			URL:         f.URL,
			Description: truncateDescription(p.sanitizer.SanitizeText(f.Description)),
			Summary:     p.sanitizer.Sanitize(f.Summary),
			Source:      p.sanitizer.SanitizeText(f.Source),
			FetchedAt:   now,
			CreatedAt:   now,
		}
		if item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// persist は記事セットをサイクルの記録として保存する。
// URLを冪等キーとするUPSERTのため、同一記事の再取得は重複行を作らない。
func (p *Provider) persist(ctx context.Context, items []*model.Item) {
	for _, item := range items {
		if _, err := p.itemRepo.UpsertByURL(ctx, item); err != nil {
			p.logger.Error("記事の保存に失敗しました",
				slog.String("url", item.URL),
				slog.String("error", err.Error()),
			)
		}
	}
}

// truncateDescription は説明文を上限文字数に切り詰める。
// 上限を超える場合は247文字+"..."を返す。文字数はルーン単位で数える。
func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= descriptionLimit {
		return s
	}
	return string(runes[:descriptionLimit-3]) + "..."
}

// compile-time interface check
var _ ProviderService = (*Provider)(nil)
