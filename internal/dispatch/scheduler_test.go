package dispatch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/newsdrop/internal/channel"
	"github.com/hitoshi/newsdrop/internal/model"
)

// mockProvider はテスト用のコンテンツプロバイダ。
type mockProvider struct {
	mu             sync.Mutex
	fetchCycleFunc func(ctx context.Context, now time.Time) []*model.Item
	fetchCount     int
}

func (m *mockProvider) FetchCycle(ctx context.Context, now time.Time) []*model.Item {
	m.mu.Lock()
	m.fetchCount++
	m.mu.Unlock()
	if m.fetchCycleFunc != nil {
		return m.fetchCycleFunc(ctx, now)
	}
	return testItems(3)
}

func (m *mockProvider) fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCount
}

func newTestScheduler(
	subRepo *mockSubscriberRepo,
	provider *mockProvider,
	delRepo *mockDeliveryRepo,
) (*Scheduler, *noopCollector) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	collector := newNoopCollector()

	resolver := NewResolver(logger, "Asia/Kolkata")
	emailAdapter := &fakeAdapter{kind: channel.KindEmail}
	dispatcher := NewDispatcher(
		subRepo, newMockChannelRepo(), delRepo,
		emailAdapter, channel.NewRegistry(), collector,
		logger, 5, 10*time.Second,
	)

	return NewScheduler(subRepo, resolver, provider, dispatcher, collector, logger), collector
}

// TestRunOnce_DueSubscriberDelivered は配信対象がいるパスで
// 取得・配信・台帳記録が行われることを検証する。
func TestRunOnce_DueSubscriberDelivered(t *testing.T) {
	subRepo := newMockSubscriberRepo()
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		return []*model.Subscriber{
			activeSubscriber(10, 0, "Asia/Kolkata", model.CadenceDaily),
		}, nil
	}
	provider := &mockProvider{}
	delRepo := newMockDeliveryRepo()

	s, collector := newTestScheduler(subRepo, provider, delRepo)

	tick := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	if err := s.RunOnce(context.Background(), tick); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if provider.fetches() != 1 {
		t.Errorf("取得回数 = %d, want 1 (パスごとに1回)", provider.fetches())
	}
	entries := delRepo.entries()
	if len(entries) != 1 {
		t.Fatalf("台帳エントリ数 = %d, want 1", len(entries))
	}
	if !entries[0].CycleAt.Equal(tick) {
		t.Errorf("CycleAt = %v, want %v", entries[0].CycleAt, tick)
	}
	if collector.started != 1 {
		t.Errorf("パス開始記録 = %d, want 1", collector.started)
	}
}

// TestRunOnce_NoDueSubscribersSkipsFetch は配信対象ゼロのパスで
// コンテンツ取得が行われないことを検証する。
func TestRunOnce_NoDueSubscribersSkipsFetch(t *testing.T) {
	subRepo := newMockSubscriberRepo()
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		// ティックと一致しない設定時刻
		return []*model.Subscriber{
			activeSubscriber(9, 0, "Asia/Kolkata", model.CadenceDaily),
		}, nil
	}
	provider := &mockProvider{}
	delRepo := newMockDeliveryRepo()

	s, _ := newTestScheduler(subRepo, provider, delRepo)

	tick := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	if err := s.RunOnce(context.Background(), tick); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if provider.fetches() != 0 {
		t.Errorf("取得回数 = %d, want 0 (対象ゼロのパスは取得しない)", provider.fetches())
	}
	if len(delRepo.entries()) != 0 {
		t.Error("台帳エントリは記録されないべき")
	}
}

// TestRunOnce_SingleFetchSharedAcrossSubscribers は複数購読者が対象でも
// 取得が1回のみであることを検証する。
func TestRunOnce_SingleFetchSharedAcrossSubscribers(t *testing.T) {
	subRepo := newMockSubscriberRepo()
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		subs := make([]*model.Subscriber, 5)
		for i := range subs {
			s := activeSubscriber(10, 0, "Asia/Kolkata", model.CadenceDaily)
			s.ID = s.ID + "-" + string(rune('a'+i))
			subs[i] = s
		}
		return subs, nil
	}
	provider := &mockProvider{}
	delRepo := newMockDeliveryRepo()

	s, _ := newTestScheduler(subRepo, provider, delRepo)

	tick := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	if err := s.RunOnce(context.Background(), tick); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if provider.fetches() != 1 {
		t.Errorf("取得回数 = %d, want 1", provider.fetches())
	}
	if len(delRepo.entries()) != 5 {
		t.Errorf("台帳エントリ数 = %d, want 5", len(delRepo.entries()))
	}
}

// TestRunOnce_PassInProgressCoalesces は実行中のパスがある間の
// ティックがスキップされることを検証する。
func TestRunOnce_PassInProgressCoalesces(t *testing.T) {
	release := make(chan struct{})
	fetchEntered := make(chan struct{})

	subRepo := newMockSubscriberRepo()
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		return []*model.Subscriber{
			activeSubscriber(10, 0, "Asia/Kolkata", model.CadenceDaily),
		}, nil
	}
	provider := &mockProvider{
		fetchCycleFunc: func(ctx context.Context, now time.Time) []*model.Item {
			close(fetchEntered)
			<-release
			return testItems(1)
		},
	}
	delRepo := newMockDeliveryRepo()

	s, collector := newTestScheduler(subRepo, provider, delRepo)

	tick := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)

	done := make(chan error, 1)
	go func() {
		done <- s.RunOnce(context.Background(), tick)
	}()

	<-fetchEntered

	// 1回目のパスが取得中に2回目のティックが到来
	if err := s.RunOnce(context.Background(), tick.Add(time.Minute)); !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("err = %v, want ErrPassInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("1回目のパスが失敗: %v", err)
	}

	if provider.fetches() != 1 {
		t.Errorf("取得回数 = %d, want 1 (2回目はスキップ)", provider.fetches())
	}
	if collector.skipped != 1 {
		t.Errorf("スキップ記録 = %d, want 1", collector.skipped)
	}

	// パス完了後は再び実行可能
	if err := s.RunOnce(context.Background(), tick.Add(2*time.Minute)); err != nil {
		t.Fatalf("パス完了後のRunOnceが失敗: %v", err)
	}
}

// TestRunOnce_ListActiveError は購読者一覧の取得失敗がエラーとして
// 返ることを検証する。
func TestRunOnce_ListActiveError(t *testing.T) {
	subRepo := newMockSubscriberRepo()
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		return nil, errors.New("connection refused")
	}
	provider := &mockProvider{}
	delRepo := newMockDeliveryRepo()

	s, _ := newTestScheduler(subRepo, provider, delRepo)

	tick := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	if err := s.RunOnce(context.Background(), tick); err == nil {
		t.Fatal("購読者一覧の取得失敗はエラーを返すべき")
	}

	// エラー後もパスフラグは解放されている
	subRepo.listActiveFunc = func(ctx context.Context) ([]*model.Subscriber, error) {
		return nil, nil
	}
	if err := s.RunOnce(context.Background(), tick.Add(time.Minute)); err != nil {
		t.Fatalf("エラー後のRunOnceが失敗: %v", err)
	}
}

// TestStart_StopsOnContextCancel はコンテキストキャンセルで
// スケジューラが停止することを検証する。
func TestStart_StopsOnContextCancel(t *testing.T) {
	subRepo := newMockSubscriberRepo()
	provider := &mockProvider{}
	delRepo := newMockDeliveryRepo()

	s, _ := newTestScheduler(subRepo, provider, delRepo)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx, 50*time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にスケジューラが停止するべき")
	}
}
