// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

// Worker analyzes batches asynchronously from the EventBus. Producers
// enqueue work by publishing an AnalysisRequest to the analysis.requested
// topic; results land in the repository and completion events go back out
// on the bus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	analyzer *engine.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, analyzer *engine.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// AnalysisRequest is the message payload for async batch analysis. The
// batch itself must already be persisted; only the id travels on the bus.
type AnalysisRequest struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	TraceID  string `json:"traceId,omitempty"`
}

// processBatch loads a persisted batch and runs the full pipeline on it.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}
	if req.BatchID == "" {
		slog.Error("analysis request without batch id", "message_id", msg.ID)
		return fmt.Errorf("analysis request without batch id")
	}

	slog.Debug("processing batch",
		"batch_id", req.BatchID,
		"tenant_id", tenantID,
	)

	batch, err := w.repo.GetBatch(ctx, tenantID, req.BatchID)
	if err != nil {
		slog.Error("failed to load batch",
			"batch_id", req.BatchID,
			"error", err,
		)
		return err
	}

	result, err := w.analyzer.Analyze(ctx, batch)
	if err != nil {
		slog.Error("batch analysis failed",
			"batch_id", req.BatchID,
			"error", err,
		)
		return err
	}

	if err := w.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
		slog.Error("failed to save analysis",
			"analysis_id", result.ID,
			"error", err,
		)
	}

	resultPayload, _ := json.Marshal(map[string]any{
		"analysisId": result.ID,
		"batchId":    batch.ID,
		"rings":      result.Summary.FraudRingsDetected,
		"flagged":    result.Summary.SuspiciousAccountsFlagged,
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish completion",
			"analysis_id", result.ID,
			"error", err,
		)
	}

	// One alert per detected ring for downstream case management.
	for _, ring := range result.FraudRings {
		alertPayload, _ := json.Marshal(map[string]any{
			"analysisId": result.ID,
			"ringId":     ring.RingID,
			"pattern":    ring.PatternType,
			"riskScore":  ring.RiskScore,
			"members":    ring.MemberAccounts,
		})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicRingDetected, alertPayload); err != nil {
			slog.Error("failed to publish ring alert",
				"ring_id", ring.RingID,
				"error", err,
			)
		}
	}

	slog.Info("batch processed",
		"batch_id", batch.ID,
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"rings", result.Summary.FraudRingsDetected,
		"flagged", result.Summary.SuspiciousAccountsFlagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
