// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャやスケジューラから利用する。
type MetricsCollector interface {
	RecordPassStarted()
	RecordPassSkipped()
	RecordPassLatency(duration time.Duration)
	RecordDueSubscribers(count int)
	RecordDeliverySent()
	RecordDeliveryFailed()
	RecordChannelOutcome(kind string, outcome string)
	RecordItemsFetched(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	passStarted    prometheus.Counter
	passSkipped    prometheus.Counter
	passLatency    prometheus.Histogram
	dueSubscribers prometheus.Histogram
	deliverySent   prometheus.Counter
	deliveryFailed prometheus.Counter
	channelOutcome *prometheus.CounterVec
	itemsFetched   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdrop_pass_started_total",
			Help: "開始された配信パスの合計数",
		}),
		passSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdrop_pass_skipped_total",
			Help: "前回パス実行中のためスキップされたティックの合計数",
		}),
		passLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdrop_pass_latency_seconds",
			Help:    "配信パスのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		dueSubscribers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdrop_due_subscribers",
			Help:    "1パスあたりの配信対象購読者数",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
		}),
		deliverySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdrop_delivery_sent_total",
			Help: "配信成功の合計数",
		}),
		deliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdrop_delivery_failed_total",
			Help: "配信失敗の合計数",
		}),
		channelOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdrop_channel_outcome_total",
			Help: "チャネル種別・結果別の送信数",
		}, []string{"kind", "outcome"}),
		itemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdrop_items_fetched_total",
			Help: "取得された記事の合計数",
		}),
	}

	reg.MustRegister(
		c.passStarted,
		c.passSkipped,
		c.passLatency,
		c.dueSubscribers,
		c.deliverySent,
		c.deliveryFailed,
		c.channelOutcome,
		c.itemsFetched,
	)

	return c
}

// RecordPassStarted は配信パスの開始を記録する。
func (c *Collector) RecordPassStarted() {
	c.passStarted.Inc()
}

// RecordPassSkipped はティックのスキップを記録する。
func (c *Collector) RecordPassSkipped() {
	c.passSkipped.Inc()
}

// RecordPassLatency は配信パスのレイテンシを記録する。
func (c *Collector) RecordPassLatency(duration time.Duration) {
	c.passLatency.Observe(duration.Seconds())
}

// RecordDueSubscribers は配信対象購読者数を記録する。
func (c *Collector) RecordDueSubscribers(count int) {
	c.dueSubscribers.Observe(float64(count))
}

// RecordDeliverySent は配信成功を記録する。
func (c *Collector) RecordDeliverySent() {
	c.deliverySent.Inc()
}

// RecordDeliveryFailed は配信失敗を記録する。
func (c *Collector) RecordDeliveryFailed() {
	c.deliveryFailed.Inc()
}

// RecordChannelOutcome はチャネル送信の結果を記録する。
func (c *Collector) RecordChannelOutcome(kind string, outcome string) {
	c.channelOutcome.WithLabelValues(kind, outcome).Inc()
}

// RecordItemsFetched は取得された記事数を記録する。
func (c *Collector) RecordItemsFetched(count int) {
	c.itemsFetched.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
