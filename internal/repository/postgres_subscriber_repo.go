package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

const subscriberColumns = `id, email, is_active, preferred_hour, preferred_minute, timezone, cadence, max_items, last_delivered_at, created_at, updated_at`

// scanSubscriber は1行分の購読者データをスキャンする。
func scanSubscriber(row interface{ Scan(dest ...any) error }) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var lastDelivered sql.NullTime
	err := row.Scan(
		&sub.ID, &sub.Email, &sub.IsActive,
		&sub.PreferredHour, &sub.PreferredMinute,
		&sub.Timezone, &sub.Cadence, &sub.MaxItems,
		&lastDelivered, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastDelivered.Valid {
		t := lastDelivered.Time
		sub.LastDeliveredAt = &t
	}
	return sub, nil
}

// FindByID は指定IDの購読者を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByID(ctx context.Context, id string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByEmail はメールアドレスで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Create は購読者を作成する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, is_active, preferred_hour, preferred_minute, timezone, cadence, max_items, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.Email, sub.IsActive,
		sub.PreferredHour, sub.PreferredMinute,
		sub.Timezone, sub.Cadence, sub.MaxItems,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は購読者の配信設定を更新する。
func (r *PostgresSubscriberRepo) Update(ctx context.Context, sub *model.Subscriber) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers
		 SET is_active = $2, preferred_hour = $3, preferred_minute = $4,
		     timezone = $5, cadence = $6, max_items = $7, updated_at = NOW()
		 WHERE id = $1`,
		sub.ID, sub.IsActive,
		sub.PreferredHour, sub.PreferredMinute,
		sub.Timezone, sub.Cadence, sub.MaxItems,
	)
	if err != nil {
		return fmt.Errorf("購読者の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", sub.ID)
	}
	return nil
}

// ListActive はアクティブな購読者の一覧を返す。
func (r *PostgresSubscriberRepo) ListActive(ctx context.Context) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE is_active = TRUE ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブな購読者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// UpdateWatermark は配信成功時のウォーターマークを更新する。
func (r *PostgresSubscriberRepo) UpdateWatermark(ctx context.Context, id string, deliveredAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET last_delivered_at = $2, updated_at = NOW() WHERE id = $1`,
		id, deliveredAt,
	)
	if err != nil {
		return fmt.Errorf("ウォーターマークの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", id)
	}
	return nil
}

// CountByActive はアクティブ/非アクティブ別の購読者数を返す。
func (r *PostgresSubscriberRepo) CountByActive(ctx context.Context) (active int, inactive int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE is_active),
		   COUNT(*) FILTER (WHERE NOT is_active)
		 FROM subscribers`,
	).Scan(&active, &inactive)
	if err != nil {
		return 0, 0, fmt.Errorf("購読者数の集計に失敗しました: %w", err)
	}
	return active, inactive, nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
