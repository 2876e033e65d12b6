package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

const itemColumns = `id, title, url, description, summary, source, fetched_at, created_at`

// UpsertByURL はURLを冪等キーとして記事をUPSERTする。
// xmax = 0 はINSERTされた行でのみ真になるため、新規挿入の判定に使用する。
func (r *PostgresItemRepo) UpsertByURL(ctx context.Context, item *model.Item) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO items (id, title, url, description, summary, source, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (url) DO UPDATE
		 SET title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     summary = EXCLUDED.summary,
		     source = EXCLUDED.source,
		     fetched_at = EXCLUDED.fetched_at
		 RETURNING (xmax = 0)`,
		item.ID, item.Title, item.URL,
		item.Description, item.Summary, item.Source,
		item.FetchedAt, item.CreatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("記事のUPSERTに失敗しました: %w", err)
	}
	return inserted, nil
}

// ListLatest は直近に取得した記事をfetched_at降順で返す。
func (r *PostgresItemRepo) ListLatest(ctx context.Context, limit int) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY fetched_at DESC, created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item := &model.Item{}
		err := rows.Scan(
			&item.ID, &item.Title, &item.URL,
			&item.Description, &item.Summary, &item.Source,
			&item.FetchedAt, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// DeleteOlderThan は指定日時より前に取得された記事を削除する。
func (r *PostgresItemRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE fetched_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
