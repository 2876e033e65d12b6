package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用した通知チャネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

const channelColumns = `id, subscriber_id, kind, label, endpoint, is_active, last_sent_at, created_at, updated_at`

// scanChannel は1行分のチャネルデータをスキャンする。
func scanChannel(row interface{ Scan(dest ...any) error }) (*model.Channel, error) {
	ch := &model.Channel{}
	var lastSent sql.NullTime
	err := row.Scan(
		&ch.ID, &ch.SubscriberID, &ch.Kind, &ch.Label,
		&ch.Endpoint, &ch.IsActive, &lastSent,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t := lastSent.Time
		ch.LastSentAt = &t
	}
	return ch, nil
}

// FindByID は指定IDのチャネルを取得する。見つからない場合はnilを返す。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := scanChannel(r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャネルの取得に失敗しました: %w", err)
	}
	return ch, nil
}

// Create はチャネルを作成する。
func (r *PostgresChannelRepo) Create(ctx context.Context, ch *model.Channel) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (id, subscriber_id, kind, label, endpoint, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ch.ID, ch.SubscriberID, ch.Kind, ch.Label,
		ch.Endpoint, ch.IsActive, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("チャネルの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はチャネルのkind、label、endpoint、is_activeを更新する。
func (r *PostgresChannelRepo) Update(ctx context.Context, ch *model.Channel) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels
		 SET kind = $2, label = $3, endpoint = $4, is_active = $5, updated_at = NOW()
		 WHERE id = $1`,
		ch.ID, ch.Kind, ch.Label, ch.Endpoint, ch.IsActive,
	)
	if err != nil {
		return fmt.Errorf("チャネルの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("チャネルが見つかりません: %s", ch.ID)
	}
	return nil
}

// Delete は指定IDのチャネルを削除する。
func (r *PostgresChannelRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM channels WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("チャネルの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("チャネルが見つかりません: %s", id)
	}
	return nil
}

// ListBySubscriberID は購読者の全チャネル一覧を返す。
func (r *PostgresChannelRepo) ListBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error) {
	return r.listBySubscriber(ctx, subscriberID, false)
}

// ListActiveBySubscriberID は購読者のアクティブなチャネル一覧を返す。
func (r *PostgresChannelRepo) ListActiveBySubscriberID(ctx context.Context, subscriberID string) ([]*model.Channel, error) {
	return r.listBySubscriber(ctx, subscriberID, true)
}

func (r *PostgresChannelRepo) listBySubscriber(ctx context.Context, subscriberID string, activeOnly bool) ([]*model.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE subscriber_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("チャネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("チャネル行の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャネル一覧の走査に失敗しました: %w", err)
	}
	return channels, nil
}

// UpdateLastSent はチャネルの最終送信日時を更新する。
func (r *PostgresChannelRepo) UpdateLastSent(ctx context.Context, id string, sentAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET last_sent_at = $2, updated_at = NOW() WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("最終送信日時の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("チャネルが見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ ChannelRepository = (*PostgresChannelRepo)(nil)
