// Package engine orchestrates one batch analysis: graph construction,
// parallel pattern detection, ring aggregation, scoring, and assembly of
// the final typed result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ring"
)

// Analyzer runs the full detection pipeline over a transfer batch.
// It holds no per-batch state; one Analyzer serves all tenants.
type Analyzer struct {
	cfg        domain.EngineConfig
	exclusions *detect.ExclusionEngine // optional operator rules, may be nil
}

// New creates an analyzer. The exclusion engine may be nil when no
// operator rules are configured.
func New(cfg domain.EngineConfig, exclusions *detect.ExclusionEngine) *Analyzer {
	return &Analyzer{cfg: cfg, exclusions: exclusions}
}

// Analyze runs the pipeline and returns the complete result. The input
// batch is read-only; everything the result references is freshly
// allocated. An empty batch is not an error and yields zeroed counters.
func (a *Analyzer) Analyze(ctx context.Context, batch *domain.TransferBatch) (*domain.AnalysisResult, error) {
	start := time.Now()

	if a.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.AnalysisTimeout)
		defer cancel()
	}

	view := graph.Build(batch.Transfers)

	// The detectors and classifiers only read the shared view, so they
	// fan out concurrently and join before aggregation.
	var (
		cycles   []domain.PatternHit
		smurfing []domain.PatternHit
		shells   []domain.PatternHit
		excluded detect.Exclusions
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		cycles, err = detect.DetectCycles(view, a.cfg, detect.NewBudget(gctx, a.cfg.SearchBudget))
		return err
	})
	g.Go(func() error {
		smurfing = detect.DetectSmurfing(view, a.cfg)
		return nil
	})
	g.Go(func() error {
		var err error
		shells, err = detect.DetectShellNetworks(view, a.cfg, detect.NewBudget(gctx, a.cfg.SearchBudget))
		return err
	})
	g.Go(func() error {
		excluded = detect.Classify(view, a.cfg)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis of batch %s failed: %w", batch.ID, err)
	}
	// The budgeted searches observe the deadline themselves; this catches
	// a deadline that expired during the unbudgeted scans. gctx is always
	// canceled once Wait returns, so only the parent context is checked.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis of batch %s interrupted: %w", batch.ID, err)
	}

	if a.exclusions != nil {
		a.exclusions.Apply(view, excluded)
	}

	// Fixed aggregation order keeps ring ids stable for a fixed batch:
	// cycles, then fan-in, fan-out, then shell chains.
	agg := ring.NewAggregator(excluded)
	for _, hit := range cycles {
		agg.Add(hit)
	}
	for _, hit := range smurfing {
		agg.Add(hit)
	}
	for _, hit := range shells {
		agg.Add(hit)
	}

	accounts := ring.NewScorer(a.cfg).Score(agg, batch.Transfers)

	result := assemble(batch, view, agg, accounts)
	result.ID = uuid.New().String()
	result.TenantID = batch.TenantID
	result.BatchID = batch.ID
	result.Timestamp = time.Now().UTC()
	result.Summary.ProcessingMs = time.Since(start).Milliseconds()

	slog.Debug("batch analyzed",
		"batch_id", batch.ID,
		"accounts", result.Summary.TotalAccountsAnalyzed,
		"flagged", result.Summary.SuspiciousAccountsFlagged,
		"rings", result.Summary.FraudRingsDetected,
		"duration_ms", result.Summary.ProcessingMs,
	)

	return result, nil
}
