package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/newsdrop/internal/metrics"
	"github.com/hitoshi/newsdrop/internal/news"
	"github.com/hitoshi/newsdrop/internal/repository"
)

// ErrPassInProgress は前回の配信パスが実行中のため
// ティックがスキップされたことを示す。
var ErrPassInProgress = errors.New("配信パスが既に実行中です")

// Scheduler は分単位のティックで配信パスを駆動する。
// 1ティックにつき最大1パス。前回のパスが実行中の間に到来したティックは
// 実行せずスキップする（同一購読者のウォーターマークを
// 2パスが同時に触らないようにするため）。
type Scheduler struct {
	subRepo    repository.SubscriberRepository
	resolver   *Resolver
	provider   news.ProviderService
	dispatcher *Dispatcher
	collector  metrics.MetricsCollector
	logger     *slog.Logger

	// mu はpassInProgressを保護する
	mu             sync.Mutex
	passInProgress bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	subRepo repository.SubscriberRepository,
	resolver *Resolver,
	provider news.ProviderService,
	dispatcher *Dispatcher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		subRepo:    subRepo,
		resolver:   resolver,
		provider:   provider,
		dispatcher: dispatcher,
		collector:  collector,
		logger:     logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 実行中のパスはDispatcherの送信タイムアウトの範囲で完了を待つ。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("配信スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("配信スケジューラを停止しました")
			return
		case now := <-ticker.C:
			err := s.RunOnce(ctx, now.UTC().Truncate(time.Minute))
			if err != nil && !errors.Is(err, ErrPassInProgress) {
				s.logger.Error("配信パスの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の配信パスを実行する。手動トリガもこの入口を使用し、
// 通常のティックと同一のセマンティクスを持つ。
// 前回のパスが実行中の場合は何もせずErrPassInProgressを返す。
func (s *Scheduler) RunOnce(ctx context.Context, tick time.Time) error {
	s.mu.Lock()
	if s.passInProgress {
		s.mu.Unlock()
		s.logger.Warn("前回の配信パスが実行中のためティックをスキップします",
			slog.Time("tick", tick),
		)
		s.collector.RecordPassSkipped()
		return ErrPassInProgress
	}
	s.passInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.passInProgress = false
		s.mu.Unlock()
	}()

	start := time.Now()
	s.collector.RecordPassStarted()

	subs, err := s.subRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	due := s.resolver.Resolve(tick, subs)
	s.collector.RecordDueSubscribers(len(due))
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("配信パスを開始します",
		slog.Time("tick", tick),
		slog.Int("due_count", len(due)),
		slog.Int("active_count", len(subs)),
	)

	// コンテンツ取得はパスごとに1回のみ。結果は読み取り専用で
	// 全購読者の配信に共有される。
	items := s.provider.FetchCycle(ctx, tick)
	s.collector.RecordItemsFetched(len(items))

	s.dispatcher.Dispatch(ctx, due, items, tick)

	duration := time.Since(start)
	s.collector.RecordPassLatency(duration)
	s.logger.Info("配信パスが完了しました",
		slog.Time("tick", tick),
		slog.Int("due_count", len(due)),
		slog.Int("item_count", len(items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
