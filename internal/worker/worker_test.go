package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// memRepo is an in-memory Repository stub holding batches and analyses.
type memRepo struct {
	mu       sync.Mutex
	batches  map[string]*domain.TransferBatch
	analyses map[string]*domain.AnalysisResult
}

func newMemRepo() *memRepo {
	return &memRepo{
		batches:  make(map[string]*domain.TransferBatch),
		analyses: make(map[string]*domain.AnalysisResult),
	}
}

func (r *memRepo) SaveBatch(ctx context.Context, tenantID string, batch *domain.TransferBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[batch.ID] = batch
	return nil
}

func (r *memRepo) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.TransferBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (r *memRepo) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[result.ID] = result
	return nil
}

func (r *memRepo) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[analysisID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r *memRepo) ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*domain.AnalysisResult, error) {
	return nil, nil
}

func (r *memRepo) ListRings(ctx context.Context, tenantID string, analysisID string) ([]*domain.FraudRing, error) {
	return nil, nil
}

func (r *memRepo) SaveExclusionRule(ctx context.Context, tenantID string, rule *domain.ExclusionRule) error {
	return nil
}

func (r *memRepo) GetExclusionRule(ctx context.Context, tenantID string, ruleID string) (*domain.ExclusionRule, error) {
	return nil, repository.ErrNotFound
}

func (r *memRepo) ListExclusionRules(ctx context.Context, tenantID string) ([]*domain.ExclusionRule, error) {
	return nil, nil
}

func (r *memRepo) DeleteExclusionRule(ctx context.Context, tenantID string, ruleID string) error {
	return nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }
func (r *memRepo) Close() error                   { return nil }

func (r *memRepo) analysisCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.analyses)
}

func cycleBatch(tenantID string) *domain.TransferBatch {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return &domain.TransferBatch{
		ID:       "batch-001",
		TenantID: tenantID,
		Transfers: []*domain.Transfer{
			{ID: "t1", Sender: "A", Receiver: "B", Amount: 1000, Timestamp: base},
			{ID: "t2", Sender: "B", Receiver: "C", Amount: 950, Timestamp: base.Add(time.Hour)},
			{ID: "t3", Sender: "C", Receiver: "A", Amount: 900, Timestamp: base.Add(2 * time.Hour)},
		},
		CreatedAt: base,
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	analyzer := engine.New(domain.DefaultEngineConfig(), nil)

	t.Run("StartAndStop", func(t *testing.T) {
		worker := NewWorker(eventBus, newMemRepo(), analyzer)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessBatch", func(t *testing.T) {
		repo := newMemRepo()
		repo.SaveBatch(context.Background(), "tenant-test", cycleBatch("tenant-test"))

		w := NewWorker(eventBus, repo, analyzer)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track completion events
		var completed atomic.Bool
		var completionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			completionPayload = msg.Payload
			completed.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		req := AnalysisRequest{
			BatchID:  "batch-001",
			TenantID: "tenant-test",
		}
		payload, _ := json.Marshal(req)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicAnalysisRequested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(200 * time.Millisecond)

		if !completed.Load() {
			t.Fatal("expected completion event to be published")
		}

		var completion struct {
			AnalysisID string `json:"analysisId"`
			BatchID    string `json:"batchId"`
			Rings      int    `json:"rings"`
			Flagged    int    `json:"flagged"`
		}
		if err := json.Unmarshal(completionPayload, &completion); err != nil {
			t.Fatalf("failed to parse completion: %v", err)
		}

		if completion.BatchID != "batch-001" {
			t.Errorf("expected batchId 'batch-001', got '%s'", completion.BatchID)
		}
		if completion.Rings != 1 {
			t.Errorf("expected 1 ring, got %d", completion.Rings)
		}
		if completion.Flagged != 3 {
			t.Errorf("expected 3 flagged accounts, got %d", completion.Flagged)
		}

		if repo.analysisCount() != 1 {
			t.Errorf("expected 1 saved analysis, got %d", repo.analysisCount())
		}
	})

	t.Run("RingAlertPublished", func(t *testing.T) {
		repo := newMemRepo()
		repo.SaveBatch(context.Background(), "tenant-alert", cycleBatch("tenant-alert"))

		w := NewWorker(eventBus, repo, analyzer)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertPayload []byte
		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicRingDetected, func(ctx context.Context, msg *domain.Message) error {
			alertPayload = msg.Payload
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(AnalysisRequest{BatchID: "batch-001", TenantID: "tenant-alert"})
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicAnalysisRequested, payload)

		time.Sleep(200 * time.Millisecond)

		if !alertReceived.Load() {
			t.Fatal("expected ring alert to be published")
		}

		var alert struct {
			RingID    string   `json:"ringId"`
			Pattern   string   `json:"pattern"`
			RiskScore float64  `json:"riskScore"`
			Members   []string `json:"members"`
		}
		if err := json.Unmarshal(alertPayload, &alert); err != nil {
			t.Fatalf("failed to parse alert: %v", err)
		}

		if alert.RingID != "RING_001" {
			t.Errorf("expected ring id 'RING_001', got '%s'", alert.RingID)
		}
		if alert.Pattern != domain.RingPatternCycle {
			t.Errorf("expected cycle pattern, got '%s'", alert.Pattern)
		}
		if alert.RiskScore != 90 {
			t.Errorf("expected risk score 90, got %.1f", alert.RiskScore)
		}
		if len(alert.Members) != 3 {
			t.Errorf("expected 3 members, got %d", len(alert.Members))
		}
	})

	t.Run("UnknownBatch", func(t *testing.T) {
		repo := newMemRepo()
		w := NewWorker(eventBus, repo, analyzer)

		cfg := Config{
			TenantIDs: []string{"tenant-missing"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(AnalysisRequest{BatchID: "no-such-batch", TenantID: "tenant-missing"})
		eventBus.Publish(context.Background(), "tenant-missing", domain.TopicAnalysisRequested, payload)

		time.Sleep(100 * time.Millisecond)

		if repo.analysisCount() != 0 {
			t.Errorf("expected no saved analyses, got %d", repo.analysisCount())
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, newMemRepo(), analyzer)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}
