package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// PostgresDeliveryRepo はPostgreSQLを使用した配信台帳リポジトリ。
type PostgresDeliveryRepo struct {
	db *sql.DB
}

// NewPostgresDeliveryRepo はPostgresDeliveryRepoを生成する。
func NewPostgresDeliveryRepo(db *sql.DB) *PostgresDeliveryRepo {
	return &PostgresDeliveryRepo{db: db}
}

// Record は配信台帳エントリを作成する。
func (r *PostgresDeliveryRepo) Record(ctx context.Context, d *model.Delivery) error {
	results, err := json.Marshal(d.ChannelResults)
	if err != nil {
		return fmt.Errorf("チャネル結果のシリアライズに失敗しました: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, subscriber_id, cycle_at, item_count, status, error_message, channel_results, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.SubscriberID, d.CycleAt, d.ItemCount,
		d.Status, d.ErrorMessage, results, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("配信台帳エントリの作成に失敗しました: %w", err)
	}
	return nil
}

// ListBySubscriberID は購読者の配信履歴をcycle_at降順で返す。
func (r *PostgresDeliveryRepo) ListBySubscriberID(ctx context.Context, subscriberID string, limit int) ([]*model.Delivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subscriber_id, cycle_at, item_count, status, error_message, channel_results, created_at
		 FROM deliveries
		 WHERE subscriber_id = $1
		 ORDER BY cycle_at DESC
		 LIMIT $2`,
		subscriberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("配信履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var deliveries []*model.Delivery
	for rows.Next() {
		d := &model.Delivery{}
		var results []byte
		err := rows.Scan(
			&d.ID, &d.SubscriberID, &d.CycleAt, &d.ItemCount,
			&d.Status, &d.ErrorMessage, &results, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("配信履歴行の読み取りに失敗しました: %w", err)
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &d.ChannelResults); err != nil {
				return nil, fmt.Errorf("チャネル結果のデシリアライズに失敗しました: %w", err)
			}
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信履歴の走査に失敗しました: %w", err)
	}
	return deliveries, nil
}

// CountByStatusSince は指定日時以降の配信結果をステータス別に集計する。
func (r *PostgresDeliveryRepo) CountByStatusSince(ctx context.Context, since time.Time) (sent int, failed int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status = 'sent'),
		   COUNT(*) FILTER (WHERE status = 'failed')
		 FROM deliveries
		 WHERE cycle_at >= $1`,
		since,
	).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("配信結果の集計に失敗しました: %w", err)
	}
	return sent, failed, nil
}

// DeleteOlderThan は指定日時より前のサイクルの台帳エントリを削除する。
func (r *PostgresDeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE cycle_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い台帳エントリの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ DeliveryRepository = (*PostgresDeliveryRepo)(nil)
