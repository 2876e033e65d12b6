package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdrop/internal/channel"
	"github.com/hitoshi/newsdrop/internal/metrics"
	"github.com/hitoshi/newsdrop/internal/model"
	"github.com/hitoshi/newsdrop/internal/repository"
)

// Dispatcher は配信対象の購読者へ記事セットをファンアウトする。
// 購読者単位の配信はsemaphoreパターンで並列実行され、
// 1購読者内のチャネル送信も互いに独立して並列実行される。
// チャネルの失敗は分離され、他のチャネル・他の購読者に波及しない。
type Dispatcher struct {
	subRepo      repository.SubscriberRepository
	channelRepo  repository.ChannelRepository
	deliveryRepo repository.DeliveryRepository
	email        channel.Adapter
	registry     *channel.Registry
	collector    metrics.MetricsCollector
	logger       *slog.Logger
	maxWorkers   int
	sendTimeout  time.Duration
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// emailがnilの場合（メール未設定）、メールチャネルは常に失敗として記録される。
// maxWorkersが0以下の場合はデフォルト値10を使用する。
func NewDispatcher(
	subRepo repository.SubscriberRepository,
	channelRepo repository.ChannelRepository,
	deliveryRepo repository.DeliveryRepository,
	email channel.Adapter,
	registry *channel.Registry,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxWorkers int,
	sendTimeout time.Duration,
) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Dispatcher{
		subRepo:      subRepo,
		channelRepo:  channelRepo,
		deliveryRepo: deliveryRepo,
		email:        email,
		registry:     registry,
		collector:    collector,
		logger:       logger,
		maxWorkers:   maxWorkers,
		sendTimeout:  sendTimeout,
	}
}

// Dispatch は配信対象の全購読者へ記事セットを配信する。
// itemsはパス内で共有される読み取り専用スライスで、
// 購読者ごとのmax_itemsによる切り詰めはスライシングのみで行う。
func (d *Dispatcher) Dispatch(ctx context.Context, due []*model.Subscriber, items []*model.Item, cycleAt time.Time) {
	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, d.maxWorkers)
	var wg sync.WaitGroup

	for _, sub := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(s *model.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			d.dispatchSubscriber(ctx, s, items, cycleAt)
		}(sub)
	}

	wg.Wait()
}

// dispatchSubscriber は1購読者への配信を実行し、台帳エントリを記録する。
func (d *Dispatcher) dispatchSubscriber(ctx context.Context, sub *model.Subscriber, items []*model.Item, cycleAt time.Time) {
	// パスのキャンセル後に開始する購読者は試行せずスキップする。
	// 開始済みの送信は各自の送信タイムアウト内で完走する。
	if ctx.Err() != nil {
		d.logger.Warn("配信が中断されたため台帳エントリを記録しません",
			slog.String("subscriber_id", sub.ID),
		)
		return
	}

	// 購読者のmax_itemsで切り詰める
	subset := items
	if sub.MaxItems > 0 && len(subset) > sub.MaxItems {
		subset = subset[:sub.MaxItems]
	}

	channels, err := d.channelRepo.ListActiveBySubscriberID(ctx, sub.ID)
	if err != nil {
		d.logger.Error("チャネル一覧の取得に失敗しました。メールのみ配信します",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		channels = nil
	}

	// メール + 各Webhookチャネルを並列に試行する。
	// 各試行は独立しており、結果は自分のスロットにのみ書き込む。
	results := make([]model.ChannelResult, len(channels)+1)
	var sendWg sync.WaitGroup

	sendWg.Add(1)
	go func() {
		defer sendWg.Done()
		results[0] = d.attemptEmail(ctx, sub, subset, cycleAt)
	}()

	for i, ch := range channels {
		sendWg.Add(1)
		go func(slot int, c *model.Channel) {
			defer sendWg.Done()
			results[slot] = d.attemptChannel(ctx, sub, c, subset, cycleAt)
		}(i+1, ch)
	}

	sendWg.Wait()

	// ここまで到達した試行は完走している（成功・失敗・タイムアウトのいずれか）。
	// シャットダウン中でも完走した結果は必ず台帳に残すため、
	// 後段の永続化はパスのキャンセルから切り離す。
	persistCtx := context.WithoutCancel(ctx)

	emailResult := results[0]

	// メール成功時のみウォーターマークを進める。
	// Webhookのみの成功はケイデンスの起点にならない。
	if emailResult.Outcome == model.ChannelOutcomeSent {
		if err := d.subRepo.UpdateWatermark(persistCtx, sub.ID, cycleAt); err != nil {
			// 失敗すると次の一致ティックで再配信されうるが、
			// パスの継続を優先する。
			d.logger.Error("ウォーターマークの更新に失敗しました",
				slog.String("subscriber_id", sub.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	status := model.DeliveryStatusFailed
	if emailResult.Outcome == model.ChannelOutcomeSent {
		status = model.DeliveryStatusSent
	}

	entry := &model.Delivery{
		ID:             uuid.New().String(),
		SubscriberID:   sub.ID,
		CycleAt:        cycleAt,
		ItemCount:      len(subset),
		Status:         status,
		ErrorMessage:   emailResult.Error,
		ChannelResults: results,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.deliveryRepo.Record(persistCtx, entry); err != nil {
		d.logger.Error("台帳エントリの記録に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	for _, r := range results {
		d.collector.RecordChannelOutcome(string(r.Kind), string(r.Outcome))
	}
	if status == model.DeliveryStatusSent {
		d.collector.RecordDeliverySent()
	} else {
		d.collector.RecordDeliveryFailed()
	}

	d.logger.Info("購読者への配信が完了しました",
		slog.String("subscriber_id", sub.ID),
		slog.Int("item_count", len(subset)),
		slog.String("status", string(status)),
		slog.Int("channel_count", len(channels)),
	)
}

// attemptEmail はメールチャネルへの送信を試行する。
func (d *Dispatcher) attemptEmail(ctx context.Context, sub *model.Subscriber, items []*model.Item, cycleAt time.Time) model.ChannelResult {
	result := model.ChannelResult{Kind: channel.KindEmail}

	if d.email == nil {
		result.Outcome = model.ChannelOutcomeFailed
		result.Error = "メール送信が設定されていません"
		return result
	}

	msg, err := d.email.Format(sub, items, cycleAt)
	if err != nil {
		result.Outcome = model.ChannelOutcomeFailed
		result.Error = err.Error()
		return result
	}

	// シャットダウンは進行中の送信を中断しない。
	// 送信はパスのキャンセルから切り離され、送信タイムアウトのみで打ち切られる。
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()

	if err := d.email.Send(sendCtx, sub, nil, msg); err != nil {
		d.logger.Warn("メールの送信に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		result.Outcome = model.ChannelOutcomeFailed
		result.Error = err.Error()
		return result
	}

	result.Outcome = model.ChannelOutcomeSent
	return result
}

// attemptChannel は1つのWebhookチャネルへの送信を試行する。
// 未実装の種別はunsupported、エンドポイント未設定はskippedとして記録し、
// 送信は行わない。
func (d *Dispatcher) attemptChannel(ctx context.Context, sub *model.Subscriber, ch *model.Channel, items []*model.Item, cycleAt time.Time) model.ChannelResult {
	result := model.ChannelResult{
		ChannelID: ch.ID,
		Kind:      ch.Kind,
		Label:     ch.Label,
	}

	adapter := d.registry.Get(ch.Kind)
	if adapter == nil {
		result.Outcome = model.ChannelOutcomeUnsupported
		result.Error = "このチャネル種別は未実装です"
		return result
	}

	if ch.Endpoint == "" {
		result.Outcome = model.ChannelOutcomeSkipped
		result.Error = "エンドポイントが設定されていません"
		return result
	}

	msg, err := adapter.Format(sub, items, cycleAt)
	if err != nil {
		result.Outcome = model.ChannelOutcomeFailed
		result.Error = err.Error()
		return result
	}

	// シャットダウンは進行中の送信を中断しない。
	// 送信はパスのキャンセルから切り離され、送信タイムアウトのみで打ち切られる。
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()

	if err := adapter.Send(sendCtx, sub, ch, msg); err != nil {
		d.logger.Warn("チャネルへの送信に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("channel_id", ch.ID),
			slog.String("channel_kind", string(ch.Kind)),
			slog.String("error", err.Error()),
		)
		result.Outcome = model.ChannelOutcomeFailed
		result.Error = err.Error()
		return result
	}

	// 成功したチャネルは自身のlast_sent_atのみ更新する。
	// 完走した送信の記録はパスのキャンセルに影響されない。
	if err := d.channelRepo.UpdateLastSent(context.WithoutCancel(ctx), ch.ID, cycleAt); err != nil {
		d.logger.Error("チャネルの最終送信日時の更新に失敗しました",
			slog.String("channel_id", ch.ID),
			slog.String("error", err.Error()),
		)
	}

	result.Outcome = model.ChannelOutcomeSent
	return result
}
