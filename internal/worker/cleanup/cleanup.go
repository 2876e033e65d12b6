// Package cleanup は古いデータの自動削除ジョブを提供する。
// 保持期間を超過した記事と配信台帳エントリを日次バッチで削除する。
// 台帳は追記専用だが、保持期間超過分のクリーンアップは例外とする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// デフォルトの保持日数
const (
	DefaultItemRetentionDays     = 30
	DefaultDeliveryRetentionDays = 180
)

// ItemPurger は記事の削除インターフェース。
type ItemPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryPurger は配信台帳エントリの削除インターフェース。
type DeliveryPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	items      ItemPurger
	deliveries DeliveryPurger
	logger     *slog.Logger

	ItemRetentionDays     int // 記事の保持日数（デフォルト: 30）
	DeliveryRetentionDays int // 台帳エントリの保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(items ItemPurger, deliveries DeliveryPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		items:                 items,
		deliveries:            deliveries,
		logger:                logger,
		ItemRetentionDays:     DefaultItemRetentionDays,
		DeliveryRetentionDays: DefaultDeliveryRetentionDays,
	}
}

// Run は保持期間を超過した記事と台帳エントリを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := time.Now().UTC()

	itemCutoff := now.AddDate(0, 0, -j.ItemRetentionDays)
	deletedItems, err := j.items.DeleteOlderThan(ctx, itemCutoff)
	if err != nil {
		j.logger.Error("記事クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.ItemRetentionDays),
		)
		return fmt.Errorf("記事クリーンアップの実行に失敗しました: %w", err)
	}

	deliveryCutoff := now.AddDate(0, 0, -j.DeliveryRetentionDays)
	deletedDeliveries, err := j.deliveries.DeleteOlderThan(ctx, deliveryCutoff)
	if err != nil {
		j.logger.Error("台帳クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.DeliveryRetentionDays),
		)
		return fmt.Errorf("台帳クリーンアップの実行に失敗しました: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_items", deletedItems),
		slog.Int64("deleted_deliveries", deletedDeliveries),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔でクリーンアップジョブを定期実行する。
// 起動直後に1回実行し、以降はinterval間隔で実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	if err := j.Run(ctx); err != nil {
		j.logger.Error("初回クリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
