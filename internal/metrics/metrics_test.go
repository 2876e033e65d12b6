package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// counterValue はレジストリから指定カウンタの現在値を取り出す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(mf.GetMetric()))
			}
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordDeliverySent_IncrementsCounter は配信成功カウンタが増加することを検証する。
func TestRecordDeliverySent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDeliverySent()
	c.RecordDeliverySent()

	if val := counterValue(t, reg, "newsdrop_delivery_sent_total"); val != 2 {
		t.Errorf("delivery_sent_total = %v, want 2", val)
	}
}

// TestRecordDeliveryFailed_IncrementsCounter は配信失敗カウンタが増加することを検証する。
func TestRecordDeliveryFailed_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDeliveryFailed()

	if val := counterValue(t, reg, "newsdrop_delivery_failed_total"); val != 1 {
		t.Errorf("delivery_failed_total = %v, want 1", val)
	}
}

// TestRecordPassCounters はパス開始・スキップのカウンタを検証する。
func TestRecordPassCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPassStarted()
	c.RecordPassSkipped()
	c.RecordPassStarted()

	if val := counterValue(t, reg, "newsdrop_pass_started_total"); val != 2 {
		t.Errorf("pass_started_total = %v, want 2", val)
	}
	if val := counterValue(t, reg, "newsdrop_pass_skipped_total"); val != 1 {
		t.Errorf("pass_skipped_total = %v, want 1", val)
	}
}

// TestRecordChannelOutcome_LabelsByKindAndOutcome はラベル別に集計されることを検証する。
func TestRecordChannelOutcome_LabelsByKindAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordChannelOutcome("slack", "sent")
	c.RecordChannelOutcome("slack", "sent")
	c.RecordChannelOutcome("slack", "failed")
	c.RecordChannelOutcome("webhook", "sent")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "newsdrop_channel_outcome_total" {
			continue
		}
		found = true
		if len(mf.GetMetric()) != 3 {
			t.Errorf("ラベル組み合わせ数 = %d, want 3", len(mf.GetMetric()))
		}
	}
	if !found {
		t.Error("newsdrop_channel_outcome_total metric not found")
	}
}

// TestRecordLatencyAndHistograms はヒストグラム記録がパニックしないことを検証する。
func TestRecordLatencyAndHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPassLatency(1500 * time.Millisecond)
	c.RecordDueSubscribers(12)
	c.RecordItemsFetched(5)

	if val := counterValue(t, reg, "newsdrop_items_fetched_total"); val != 5 {
		t.Errorf("items_fetched_total = %v, want 5", val)
	}
}
