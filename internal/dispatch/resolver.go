// Package dispatch は配信エンジンの中核を提供する。
// ティックごとの配信対象判定（Resolver）、チャネルファンアウト（Dispatcher）、
// 分単位ティックの駆動（Scheduler）を含む。
package dispatch

import (
	"log/slog"
	"time"

	"github.com/hitoshi/newsdrop/internal/model"
)

// Resolver はティックと購読者集合から配信対象（due-set）を計算する。
// 判定は2条件の論理積:
//   - 時刻一致: ティックを購読者のタイムゾーンに変換したローカル時刻の
//     時・分が設定値と完全一致する（分単位の完全一致、許容幅なし）
//   - ケイデンスゲート: 未配信、またはウォーターマークからの経過日数が
//     ケイデンスの必要日数以上
type Resolver struct {
	logger      *slog.Logger
	defaultZone *time.Location
}

// NewResolver はResolverの新しいインスタンスを生成する。
// defaultZoneは不正なタイムゾーンを持つ購読者の代替ゾーン。
// 読み込めない場合はUTCを使用する。
func NewResolver(logger *slog.Logger, defaultZone string) *Resolver {
	loc, err := time.LoadLocation(defaultZone)
	if err != nil {
		logger.Warn("デフォルトタイムゾーンの読み込みに失敗しました。UTCを使用します",
			slog.String("timezone", defaultZone),
			slog.String("error", err.Error()),
		)
		loc = time.UTC
	}
	return &Resolver{
		logger:      logger,
		defaultZone: loc,
	}
}

// Resolve はティック時点の配信対象購読者を返す。
// 非アクティブな購読者は対象外。タイムゾーンが解決できない購読者は
// デフォルトゾーンで判定され、警告ログを残すが除外はされない。
func (r *Resolver) Resolve(tick time.Time, subs []*model.Subscriber) []*model.Subscriber {
	var due []*model.Subscriber
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		if !r.isTimeMatch(tick, sub) {
			continue
		}
		if !passesCadenceGate(tick, sub) {
			continue
		}
		due = append(due, sub)
	}
	return due
}

// isTimeMatch はティックのローカル時刻が設定時刻と一致するかを判定する。
func (r *Resolver) isTimeMatch(tick time.Time, sub *model.Subscriber) bool {
	loc, err := time.LoadLocation(sub.Timezone)
	if err != nil {
		r.logger.Warn("タイムゾーンを解決できません。デフォルトゾーンで判定します",
			slog.String("subscriber_id", sub.ID),
			slog.String("timezone", sub.Timezone),
			slog.String("default_zone", r.defaultZone.String()),
		)
		loc = r.defaultZone
	}
	local := tick.In(loc)
	return local.Hour() == sub.PreferredHour && local.Minute() == sub.PreferredMinute
}

// passesCadenceGate はケイデンスゲートを判定する。
// 経過日数はUTCの暦日の差で数える。時刻一致が連続ティックで
// 重複した場合（DST遷移等）もこのゲートが二重配信を防ぐ。
func passesCadenceGate(tick time.Time, sub *model.Subscriber) bool {
	if sub.LastDeliveredAt == nil {
		return true
	}
	return wholeDaysBetween(*sub.LastDeliveredAt, tick) >= sub.Cadence.MinIntervalDays()
}

// wholeDaysBetween はfromからtoまでのUTC暦日の差を返す。
func wholeDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
