// Package model はドメインモデルを定義する。
package model

import "time"

// Item はコンテンツプロバイダが取得した記事を表す。
// URLはサイクル内の冪等キーとして一意制約を持つ。
// 記事はサイクル単位で取得され、購読者には紐付かない。
type Item struct {
	ID          string
	Title       string
	URL         string
	Description string // サニタイズ済み
	Summary     string // サニタイズ済み。生成サマリーがない場合は空
	Source      string
	FetchedAt   time.Time
	CreatedAt   time.Time
}

// FetchedItem はコンテンツソースから取得した未保存の記事データを表す。
// プロバイダがフィードをパースした後、サニタイズを経てItemとして保存される。
type FetchedItem struct {
	Title       string
	URL         string
	Description string // 未サニタイズ
	Summary     string // 未サニタイズ
	Source      string
	PublishedAt *time.Time
}
